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

package admin

import (
	"errors"
	"fmt"

	"github.com/abcxyz/pkg/cli"
)

// Config defines the set over environment variables required
// for running the admin server. The OAuth provider settings are loaded
// separately.
type Config struct {
	Port        string
	ProjectID   string
	DatabaseURL string
	RedisURL    string
}

// Validate validates the admin config after load.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.ProjectID == "" {
		merr = errors.Join(merr, fmt.Errorf("PROJECT_ID is required"))
	}

	if cfg.DatabaseURL == "" {
		merr = errors.Join(merr, fmt.Errorf("DATABASE_URL is required"))
	}

	return merr
}

// ToFlags binds the config to the give [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("ADMIN OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &cfg.Port,
		EnvVar:  "PORT",
		Default: "8080",
		Usage:   `The port the admin server listens to.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "project-id",
		Target: &cfg.ProjectID,
		EnvVar: "PROJECT_ID",
		Usage:  `Google Cloud project ID.`,
	})

	s := set.NewSection("STORE OPTIONS")

	s.StringVar(&cli.StringVar{
		Name:   "database-url",
		Target: &cfg.DatabaseURL,
		EnvVar: "DATABASE_URL",
		Usage:  `Postgres connection string of the integration configuration store.`,
	})

	s.StringVar(&cli.StringVar{
		Name:   "redis-url",
		Target: &cfg.RedisURL,
		EnvVar: "REDIS_URL",
		Usage:  `Optional Redis url whose cached configuration details are dropped on change.`,
	})

	return set
}

