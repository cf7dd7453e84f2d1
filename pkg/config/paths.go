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

package config

import (
	"os"
	"path/filepath"
	"strings"
)

// GetWeftDataDir returns the weft data directory.
//
// Priority:
//  1. CLAUDE_CONFIG_DIR environment variable (the hook host's base
//     directory, when weft runs embedded in an agent session)
//  2. WEFT_DATA_DIR environment variable
//  3. ~/.weft (default)
//
// The returned path is always absolute. Tilde (~) is expanded to the
// user's home directory and relative paths are made absolute.
//
// This function reads directly from os.Getenv, not from viper, because
// it has to locate the config file before any config is loaded.
func GetWeftDataDir() string {
	if dataDir := os.Getenv("CLAUDE_CONFIG_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}
	if dataDir := os.Getenv("WEFT_DATA_DIR"); dataDir != "" {
		return expandPath(dataDir)
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to a relative directory when home is unknown.
		return ".weft"
	}
	return filepath.Join(homeDir, ".weft")
}

// GetWeftSubDir returns a subdirectory within the weft data directory.
// Example: GetWeftSubDir("index") returns ~/.weft/index.
func GetWeftSubDir(subdir string) string {
	return filepath.Join(GetWeftDataDir(), subdir)
}

// ProjectDirOverride returns the explicit project root supplied by the
// hook host via CLAUDE_PROJECT_DIR, or "" when unset. Session
// registration prefers this over deriving the project from the cwd.
func ProjectDirOverride() string {
	if dir := os.Getenv("CLAUDE_PROJECT_DIR"); dir != "" {
		return expandPath(dir)
	}
	return ""
}

// WorkingDirOverride returns the workspace root supplied by the hook
// host via CLAUDE_WORKING_DIR, or "" when unset. In multi-project
// setups this stands in for the session cwd.
func WorkingDirOverride() string {
	if dir := os.Getenv("CLAUDE_WORKING_DIR"); dir != "" {
		return expandPath(dir)
	}
	return ""
}

// expandPath expands ~ and resolves to an absolute path.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
