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

// Package integration checks a deployed collect server end to end: a signed
// batch posted to it must reach the durable event store.
package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type config struct {
	ProjectID              string        `env:"PROJECT_ID,required"`
	DatasetID              string        `env:"DATASET_ID,required"`
	EventsTableID          string        `env:"EVENTS_TABLE_ID,default=events"`
	IDToken                string        `env:"ID_TOKEN,required"`
	SigningSecret          string        `env:"SIGNING_SECRET,required"`
	EndpointURL            string        `env:"ENDPOINT_URL,required"`
	HTTPRequestTimeout     time.Duration `env:"HTTP_REQUEST_TIMEOUT,default=60s"`
	QueryRetryWaitDuration time.Duration `env:"QUERY_RETRY_WAIT_DURATION,default=5s"`
	QueryRetryLimit        uint64        `env:"QUERY_RETRY_COUNT,default=5"`
}

// newTestConfig reads the deployment under test from the environment.
func newTestConfig(ctx context.Context) (*config, error) {
	var c config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &c,
		Lookuper: envconfig.OsLookuper(),
	}); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if c.QueryRetryLimit == 0 {
		return nil, fmt.Errorf("QUERY_RETRY_COUNT must be positive")
	}
	return &c, nil
}
