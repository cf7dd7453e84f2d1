// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// ProjectIDFromPath derives a project identity from its absolute path:
// the first 32 hex characters of the path's SHA-256 digest. Equal paths
// always yield the same id; paths sharing a basename do not collide.
// The path is cleaned but not resolved, so symlinked and real paths are
// distinct projects.
func ProjectIDFromPath(path string) string {
	abs := path
	if !filepath.IsAbs(abs) {
		abs, _ = filepath.Abs(abs)
	}
	sum := sha256.Sum256([]byte(filepath.Clean(abs)))
	return hex.EncodeToString(sum[:])[:32]
}

// ProjectNameFromPath derives the display name of a project from its
// path basename.
func ProjectNameFromPath(path string) string {
	return filepath.Base(filepath.Clean(path))
}
