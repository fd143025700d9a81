// Copyright 2026 The Authors (see AUTHORS file)
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

// Package cli implements the commands for the event-integrations CLI.
package cli

import (
	"context"

	"github.com/abcxyz/org-event-integrations/pkg/version"
	"github.com/abcxyz/pkg/cli"
)

var rootCmd = func() cli.Command {
	return &cli.RootCommand{
		Name:    "event-integrations",
		Version: version.HumanVersion,
		Commands: map[string]cli.CommandFactory{
			"collect": func() cli.Command {
				return &cli.RootCommand{
					Name:        "collect",
					Description: "Perform event collection operations",
					Commands: map[string]cli.CommandFactory{
						"server": func() cli.Command {
							return &CollectServerCommand{}
						},
					},
				}
			},
			"listener": func() cli.Command {
				return &cli.RootCommand{
					Name:        "listener",
					Description: "Perform integration delivery operations",
					Commands: map[string]cli.CommandFactory{
						"run": func() cli.Command {
							return &ListenerRunCommand{}
						},
					},
				}
			},
			"admin": func() cli.Command {
				return &cli.RootCommand{
					Name:        "admin",
					Description: "Perform integration setup operations",
					Commands: map[string]cli.CommandFactory{
						"server": func() cli.Command {
							return &AdminServerCommand{}
						},
					},
				}
			},
			"config": func() cli.Command {
				return &cli.RootCommand{
					Name:        "config",
					Description: "Inspect integration configuration",
					Commands: map[string]cli.CommandFactory{
						"validate": func() cli.Command {
							return &ConfigValidateCommand{}
						},
					},
				}
			},
		},
	}
}

// Run executes the CLI.
func Run(ctx context.Context, args []string) error {
	return rootCmd().Run(ctx, args) //nolint:wrapcheck // Want passthrough
}
