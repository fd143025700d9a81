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
	"fmt"

	"google.golang.org/api/option"

	"github.com/abcxyz/org-event-integrations/pkg/secrets"
	"github.com/abcxyz/org-event-integrations/pkg/version"
)

// resolveSecrets replaces every value that names a Secret Manager version
// with the payload of that version. A client is only created when at least
// one value needs it.
func resolveSecrets(ctx context.Context, opts []option.ClientOption, values ...*string) error {
	needed := false
	for _, v := range values {
		if secrets.IsVersionName(*v) {
			needed = true
			break
		}
	}
	if !needed {
		return nil
	}

	r, err := secrets.NewResolver(ctx, opts...)
	if err != nil {
		return fmt.Errorf("failed to create secret resolver: %w", err)
	}
	defer r.Close()

	for _, v := range values {
		resolved, err := r.Resolve(ctx, *v)
		if err != nil {
			return fmt.Errorf("failed to resolve secret: %w", err)
		}
		*v = resolved
	}
	return nil
}

// userAgent is sent with every Google Cloud API request.
func userAgent() option.ClientOption {
	return option.WithUserAgent(fmt.Sprintf("abcxyz:%s/%s", version.Name, version.Version))
}
