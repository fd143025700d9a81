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
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/abcxyz/org-event-integrations/pkg/events"
)

// maxFilterDepth bounds the nesting of filter groups.
const maxFilterDepth = 32

// Operation is the comparison a filter rule applies.
type Operation int

const (
	OperationEquals Operation = iota
	OperationNotEquals
	OperationIn
	OperationNotIn
)

var operationNames = map[Operation]string{
	OperationEquals:    "Equals",
	OperationNotEquals: "NotEquals",
	OperationIn:        "In",
	OperationNotIn:     "NotIn",
}

func (o Operation) known() bool {
	_, ok := operationNames[o]
	return ok
}

func (o Operation) String() string {
	if n, ok := operationNames[o]; ok {
		return n
	}
	return strconv.Itoa(int(o))
}

// MarshalJSON encodes known operations by name.
func (o Operation) MarshalJSON() ([]byte, error) {
	if n, ok := operationNames[o]; ok {
		return json.Marshal(n)
	}
	return json.Marshal(int(o))
}

// UnmarshalJSON accepts an operation name or its integer code. Integer codes
// outside of the known set decode successfully so evaluation can reject them.
func (o *Operation) UnmarshalJSON(b []byte) error {
	var n int
	if err := json.Unmarshal(b, &n); err == nil {
		*o = Operation(n)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("operation must be a name or integer: %w", err)
	}
	for op, name := range operationNames {
		if strings.EqualFold(name, s) {
			*o = op
			return nil
		}
	}
	return fmt.Errorf("unknown filter operation %q", s)
}

// FilterRule compares one event attribute with a value.
type FilterRule struct {
	Property  string          `json:"property"`
	Operation Operation       `json:"operation"`
	Value     json.RawMessage `json:"value"`
}

// FilterGroup combines rules and nested groups with AND or OR.
type FilterGroup struct {
	AndOperator bool           `json:"and_operator"`
	Rules       []*FilterRule  `json:"rules,omitempty"`
	Groups      []*FilterGroup `json:"groups,omitempty"`
}

// ParseFilterGroup decodes and checks a filter group. The input must be a JSON
// object and every rule must name a known attribute, use a known operation
// and carry a value of the right shape for that operation.
func ParseFilterGroup(s string) (*FilterGroup, error) {
	trimmed := bytes.TrimSpace([]byte(s))
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, errors.New("filters must be a JSON object")
	}

	var g FilterGroup
	if err := json.Unmarshal(trimmed, &g); err != nil {
		return nil, fmt.Errorf("failed to decode filters: %w", err)
	}
	if err := g.check(0); err != nil {
		return nil, err
	}
	return &g, nil
}

func (g *FilterGroup) check(depth int) error {
	if depth > maxFilterDepth {
		return fmt.Errorf("filter groups nested deeper than %d", maxFilterDepth)
	}

	var merr error
	for i, r := range g.Rules {
		if r == nil {
			merr = errors.Join(merr, fmt.Errorf("rule %d is null", i))
			continue
		}
		if strings.TrimSpace(r.Property) == "" {
			merr = errors.Join(merr, fmt.Errorf("rule %d: property is required", i))
		} else if !events.IsAttribute(r.Property) {
			merr = errors.Join(merr, fmt.Errorf("rule %d: unknown property %q", i, r.Property))
		}
		if !r.Operation.known() {
			merr = errors.Join(merr, fmt.Errorf("rule %d: unknown operation %d", i, int(r.Operation)))
			continue
		}
		if _, err := r.values(); err != nil {
			merr = errors.Join(merr, fmt.Errorf("rule %d: %w", i, err))
		}
	}
	for i, child := range g.Groups {
		if child == nil {
			merr = errors.Join(merr, fmt.Errorf("group %d is null", i))
			continue
		}
		if err := child.check(depth + 1); err != nil {
			merr = errors.Join(merr, fmt.Errorf("group %d: %w", i, err))
		}
	}
	return merr
}

// Evaluate reports whether the event satisfies the group. An empty group is
// satisfied. A rule with an unknown property or operation is not satisfied.
// A rule whose value has the wrong shape for its operation is an error.
func (g *FilterGroup) Evaluate(e *events.Envelope) (bool, error) {
	return g.evaluate(e, 0)
}

func (g *FilterGroup) evaluate(e *events.Envelope, depth int) (bool, error) {
	if depth > maxFilterDepth {
		return false, fmt.Errorf("filter groups nested deeper than %d", maxFilterDepth)
	}
	if len(g.Rules) == 0 && len(g.Groups) == 0 {
		return true, nil
	}

	results := make([]bool, 0, len(g.Rules)+len(g.Groups))
	for _, r := range g.Rules {
		if r == nil {
			return false, errors.New("null filter rule")
		}
		ok, err := r.evaluate(e)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}
	for _, child := range g.Groups {
		if child == nil {
			return false, errors.New("null filter group")
		}
		ok, err := child.evaluate(e, depth+1)
		if err != nil {
			return false, err
		}
		results = append(results, ok)
	}

	if g.AndOperator {
		for _, ok := range results {
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
	for _, ok := range results {
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (r *FilterRule) evaluate(e *events.Envelope) (bool, error) {
	actual, ok := e.Attribute(r.Property)
	if !ok || !r.Operation.known() {
		return false, nil
	}

	values, err := r.values()
	if err != nil {
		return false, fmt.Errorf("filter rule on %s: %w", r.Property, err)
	}

	matched := false
	for _, v := range values {
		if strings.EqualFold(v, actual) {
			matched = true
			break
		}
	}

	switch r.Operation {
	case OperationEquals, OperationIn:
		return matched, nil
	default:
		return !matched, nil
	}
}

// values returns the comparison values of the rule. Equals and NotEquals take
// a single scalar; In and NotIn take an array of scalars in which null
// matches an unset attribute.
func (r *FilterRule) values() ([]string, error) {
	raw := bytes.TrimSpace(r.Value)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%s requires a value", r.Operation)
	}

	switch r.Operation {
	case OperationEquals, OperationNotEquals:
		if raw[0] == '[' {
			return nil, fmt.Errorf("%s requires a single value, got an array", r.Operation)
		}
		v, err := scalar(raw)
		if err != nil {
			return nil, err
		}
		return []string{v}, nil
	case OperationIn, OperationNotIn:
		if raw[0] != '[' {
			return nil, fmt.Errorf("%s requires an array value", r.Operation)
		}
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil, fmt.Errorf("failed to decode %s values: %w", r.Operation, err)
		}
		out := make([]string, 0, len(items))
		for _, item := range items {
			if bytes.Equal(bytes.TrimSpace(item), []byte("null")) {
				out = append(out, "")
				continue
			}
			v, err := scalar(item)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unknown operation %d", int(r.Operation))
	}
}

func scalar(raw json.RawMessage) (string, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", fmt.Errorf("failed to decode value: %w", err)
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), nil
	case bool:
		return strconv.FormatBool(t), nil
	default:
		return "", fmt.Errorf("unsupported value %s", string(raw))
	}
}
