// npchat - a streaming Gemini chat client for the terminal.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"os"

	"github.com/jeranaias/npchat/internal/cli"
	"github.com/jeranaias/npchat/internal/gemini"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

func init() {
	cli.Version = Version
	cli.GitCommit = GitCommit
	cli.BuildDate = BuildDate
	gemini.UserAgent = "npchat/" + Version
}

func main() {
	cmd, args := cli.Parse()
	os.Exit(cli.Run(cmd, args))
}
