// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools holds scaffolded tool stubs. The scaffold route drops new
// stub files here and registers them behind the marker below.
package tools

import "context"

// Handler is the signature every scaffolded tool implements.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// Registry maps tool names to their handlers. Scaffolded entries are
// inserted above the marker; do not remove it.
var Registry = map[string]Handler{
	// scaffold:register
}
