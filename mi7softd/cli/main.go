// Copyright 2024 The mi7soft-daemon Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cli is the main entrypoint for mi7softd.
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd"
	"github.com/gx1727/mi7soft-daemon/mi7softd/cmd/util"
	"github.com/gx1727/mi7soft-daemon/mi7softd/config"
	"github.com/gx1727/mi7soft-daemon/mi7softd/version"
	"github.com/sirupsen/logrus"
)

var (
	configFlag  = flag.String("config", "", "configuration file path. Defaults to ./daemon.toml, created when missing.")
	verbose     = flag.Bool("verbose", false, "enable debug logging.")
	versionFlag = flag.Bool("version", false, "show version and exit.")
)

// Main is the main entrypoint.
func Main() {
	// Help and flags commands are generated automatically.
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")

	// Operator-facing verbs.
	subcommands.Register(new(cmd.Start), "")
	subcommands.Register(new(cmd.StartProcess), "")
	subcommands.Register(new(cmd.Stop), "")
	subcommands.Register(new(cmd.Restart), "")
	subcommands.Register(new(cmd.Status), "")
	subcommands.Register(new(cmd.Shutdown), "")

	const inspectGroup = "inspection"
	subcommands.Register(new(cmd.Logs), inspectGroup)
	subcommands.Register(new(cmd.History), inspectGroup)

	// All subcommands must be registered before flag parsing.
	flag.Parse()

	if *versionFlag {
		fmt.Fprintf(os.Stdout, "mi7softd version %s\n", version.Version())
		os.Exit(0)
	}

	configPath := config.ResolvePath(*configFlag)
	conf, err := config.Load(configPath)
	if err != nil {
		util.FatalErr(err)
	}

	subcommand := flag.CommandLine.Arg(0)
	setupLogging(conf, subcommand)

	logrus.WithFields(logrus.Fields{
		"version": version.Version(),
		"pid":     os.Getpid(),
		"config":  configPath,
	}).Debug("mi7softd invoked")

	g := &cmd.Globals{ConfigPath: configPath, Config: conf}
	os.Exit(int(subcommands.Execute(context.Background(), g)))
}

// setupLogging points logrus at the daemon's own log file for the start
// verb; every other verb logs to stderr so it does not pollute the daemon
// log.
func setupLogging(conf *config.Config, subcommand string) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	if subcommand != "start" {
		logrus.SetOutput(os.Stderr)
		return
	}

	// Append, never truncate: every daemon invocation shares the file.
	f, err := os.OpenFile(conf.LogFile(), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0644)
	if err != nil {
		logrus.Warnf("Cannot open log file %s, logging to stderr: %v", conf.LogFile(), err)
		return
	}
	logrus.SetOutput(f)
	util.ErrorLogger = f
}
