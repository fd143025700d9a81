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

package integrations

import (
	"regexp"

	"github.com/abcxyz/org-event-integrations/pkg/events"
)

var tokenPattern = regexp.MustCompile(`#([A-Za-z][A-Za-z0-9]*)#`)

// Lookup resolves a template token name to its value.
type Lookup func(name string) (string, bool)

// EnvelopeLookup resolves tokens from the attributes of an event.
func EnvelopeLookup(e *events.Envelope) Lookup {
	return e.Attribute
}

// Chain returns a lookup that tries each lookup in order.
func Chain(lookups ...Lookup) Lookup {
	return func(name string) (string, bool) {
		for _, l := range lookups {
			if l == nil {
				continue
			}
			if v, ok := l(name); ok {
				return v, true
			}
		}
		return "", false
	}
}

// Render replaces every #Name# token that the lookup resolves. Tokens the
// lookup does not know are left as written.
func Render(template string, lookup Lookup) string {
	return tokenPattern.ReplaceAllStringFunc(template, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if v, ok := lookup(name); ok {
			return v
		}
		return tok
	})
}

// Tokens returns the distinct token names used in the template, in order of
// first use.
func Tokens(template string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range tokenPattern.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}
