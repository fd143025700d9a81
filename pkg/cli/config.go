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

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/abcxyz/org-event-integrations/pkg/admin"
	"github.com/abcxyz/org-event-integrations/pkg/integrations"
	"github.com/abcxyz/pkg/cli"
)

// maxDocumentBytes bounds a configuration document read by the command.
const maxDocumentBytes = 1 << 20

var _ cli.Command = (*ConfigValidateCommand)(nil)

type ConfigValidateCommand struct {
	cli.BaseCommand

	flagType        string
	flagFile        string
	flagIntegration bool

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option
}

func (c *ConfigValidateCommand) Desc() string {
	return `Validate a delivery rule or integration configuration`
}

func (c *ConfigValidateCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]
  Validate a delivery rule document, or an integration-level configuration
  with -integration, against the rules of an integration type. The document
  is read from -file, or from stdin when no file is given.
`
}

func (c *ConfigValidateCommand) Flags() *cli.FlagSet {
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	f := set.NewSection("COMMAND OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:   "type",
		Target: &c.flagType,
		Usage:  `Integration type: webhook, slack, hec, datadog or teams.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "file",
		Target: &c.flagFile,
		Usage:  `Path of the document to validate. Reads stdin when empty or "-".`,
	})

	f.BoolVar(&cli.BoolVar{
		Name:    "integration",
		Target:  &c.flagIntegration,
		Default: false,
		Usage:   `Validate an integration-level configuration instead of a rule.`,
	})

	return set
}

func (c *ConfigValidateCommand) Run(ctx context.Context, args []string) error {
	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return fmt.Errorf("unexpected arguments: %q", args)
	}

	if c.flagType == "" {
		return errors.New("-type is required")
	}
	t, err := integrations.ParseType(c.flagType)
	if err != nil {
		return err //nolint:wrapcheck // Already descriptive
	}

	doc, err := c.readDocument()
	if err != nil {
		return err
	}

	v, err := integrations.NewValidator()
	if err != nil {
		return fmt.Errorf("failed to create validator: %w", err)
	}

	if c.flagIntegration {
		var cfg *string
		if trimmed := strings.TrimSpace(string(doc)); trimmed != "" && trimmed != "null" {
			cfg = &trimmed
		}
		if !v.ValidateIntegration(t, cfg) {
			return fmt.Errorf("%s integration configuration is not valid", t)
		}
		fmt.Fprintf(c.Stdout(), "%s integration configuration is valid\n", t)
		return nil
	}

	rule, err := admin.ParseRule(doc)
	if err != nil {
		return err //nolint:wrapcheck // Already wrapped
	}
	if !v.Validate(t, rule) {
		return fmt.Errorf("%s delivery rule is not valid", t)
	}
	fmt.Fprintf(c.Stdout(), "%s delivery rule is valid\n", t)
	return nil
}

func (c *ConfigValidateCommand) readDocument() ([]byte, error) {
	var r io.Reader = c.Stdin()
	if c.flagFile != "" && c.flagFile != "-" {
		f, err := os.Open(c.flagFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open document: %w", err)
		}
		defer f.Close()
		r = f
	}

	b, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return b, nil
}
