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

	"github.com/zalando/go-keyring"
)

// SecretMapping defines how to load a secret from the keyring into the
// config. The key is the keyring key name; the setter applies the value.
type SecretMapping struct {
	KeyringKey string
	Setter     func(*Config, string)
	// IsSet reports whether the value is already present, in which case
	// the keyring lookup is skipped.
	IsSet func(*Config) bool
}

// GetSecretMappings returns all secret mappings for the application.
func GetSecretMappings() []SecretMapping {
	return []SecretMapping{
		{
			KeyringKey: "embedding_api_key",
			Setter:     func(c *Config, val string) { c.Semantic.Embedder.APIKey = val },
			IsSet:      func(c *Config) bool { return c.Semantic.Embedder.APIKey != "" },
		},
		{
			KeyringKey: "store_encryption_key",
			Setter:     func(c *Config, val string) { c.Store.EncryptionKey = val },
			IsSet:      func(c *Config) bool { return c.Store.EncryptionKey != "" },
		},
	}
}

// loadSecretsFromKeyring loads secrets from the system keyring using the
// secret mappings. Environment variables win over keyring entries.
func loadSecretsFromKeyring(config *Config) error {
	if key := os.Getenv("WEFT_EMBEDDING_API_KEY"); key != "" {
		config.Semantic.Embedder.APIKey = key
	}
	if key := os.Getenv("WEFT_DB_KEY"); key != "" {
		config.Store.EncryptionKey = key
	}

	for _, mapping := range GetSecretMappings() {
		if mapping.IsSet(config) {
			continue
		}
		value, err := GetSecretFromKeyring(mapping.KeyringKey)
		if err == nil && value != "" {
			mapping.Setter(config, value)
		}
		// Non-fatal: a missing key or unavailable keyring just leaves
		// the value empty.
	}

	return nil
}

// GetSecretFromKeyring retrieves a secret from the system keyring.
func GetSecretFromKeyring(key string) (string, error) {
	return keyring.Get(ServiceName, key)
}

// SaveSecretToKeyring saves a secret to the system keyring.
func SaveSecretToKeyring(key, value string) error {
	return keyring.Set(ServiceName, key, value)
}

// DeleteSecretFromKeyring removes a secret from the system keyring.
func DeleteSecretFromKeyring(key string) error {
	return keyring.Delete(ServiceName, key)
}

// ListAvailableSecretKeys returns the secret keys the keyring can hold.
func ListAvailableSecretKeys() []string {
	mappings := GetSecretMappings()
	keys := make([]string, len(mappings))
	for i, mapping := range mappings {
		keys[i] = mapping.KeyringKey
	}
	return keys
}
