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
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	weftconfig "github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/types"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage weft configuration",
	Long:  `Manage the configuration file, keyring secrets, and agent sync history.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate example configuration file",
	Long:  `Generate an example weft.yaml configuration file in the data directory.`,
	Run:   runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration (merged from all sources).`,
	Run:   runConfigShow,
}

var configSetSecretCmd = &cobra.Command{
	Use:   "set-secret [key-name]",
	Short: "Save a secret to the system keyring",
	Long: heredoc.Doc(`
		Save a secret to the system keyring securely.

		The secret is stored in your system's credential storage (Keychain
		on macOS, Credential Manager on Windows, Secret Service on Linux)
		and never written to the config file.

		Run 'weft config list-secrets' to see the available key names.`),
	Args: cobra.ExactArgs(1),
	Run:  runConfigSetSecret,
}

var configDeleteSecretCmd = &cobra.Command{
	Use:   "delete-secret [key-name]",
	Short: "Delete a secret from the system keyring",
	Args:  cobra.ExactArgs(1),
	Run:   runConfigDeleteSecret,
}

var configListSecretsCmd = &cobra.Command{
	Use:   "list-secrets",
	Short: "List available secret keys",
	Run:   runConfigListSecrets,
}

var (
	configHistoryLimit int
	configHistoryDiff  bool
)

var configHistoryCmd = &cobra.Command{
	Use:   "history [agent]",
	Short: "Show the sync history for an agent",
	Long: heredoc.Doc(`
		Show the reconciliation history for one agent: when its declared
		config was synced, from which source, and whether the sync applied
		cleanly. With --diff each record prints the unified diff against
		the previous sync.

		The agent is named by handle: "assistant" for a global agent,
		"assistant:proj-a1b2c3d4" for a project agent.`),
	Args: cobra.ExactArgs(1),
	Run:  runConfigHistory,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetSecretCmd)
	configCmd.AddCommand(configDeleteSecretCmd)
	configCmd.AddCommand(configListSecretsCmd)
	configCmd.AddCommand(configHistoryCmd)

	configHistoryCmd.Flags().IntVar(&configHistoryLimit, "limit", 10, "maximum records to show")
	configHistoryCmd.Flags().BoolVar(&configHistoryDiff, "diff", false, "print the diff for each sync")
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configDir := weftconfig.GetWeftDataDir()
	configPath := filepath.Join(configDir, "weft.yaml")

	if err := os.MkdirAll(configDir, 0750); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating config directory: %v\n", err)
		os.Exit(1)
	}

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config file already exists: %s\n", configPath)
		fmt.Print("Overwrite? (y/N): ")
		var response string
		_, _ = fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Println("Aborted.")
			return
		}
	}

	if err := os.WriteFile(configPath, []byte(weftconfig.GenerateExampleConfig()), 0600); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing config file: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Config file created: %s\n", configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Declare your agents under the agents: section")
	fmt.Println("2. Install the session-start hook in your agent host")
	fmt.Println("   (see 'weft hook session-start --help')")
	fmt.Println("3. Point your MCP client at the weft-mcp binary")
	fmt.Println()
	fmt.Println("Using a remote embedder? Save its API key first:")
	fmt.Println("   weft config set-secret embedding_api_key")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	fmt.Println("Current Configuration:")
	fmt.Println("======================")
	fmt.Println()

	fmt.Println("Store:")
	fmt.Printf("  Path: %s\n", config.Store.Path)
	fmt.Printf("  Encrypted: %t\n", config.Store.Encrypt)
	if config.Store.Encrypt {
		if config.Store.EncryptionKey != "" {
			fmt.Printf("  Encryption Key: %s\n", maskSecret(config.Store.EncryptionKey))
		} else {
			fmt.Printf("  Encryption Key: (not set)\n")
		}
	}
	fmt.Println()

	fmt.Println("Defaults:")
	fmt.Printf("  Global channels: %s\n", seedNames(config.DefaultChannels.Global))
	fmt.Printf("  Project channels: %s\n", seedNames(config.DefaultChannels.Project))
	fmt.Printf("  Global subscriptions: %s\n", orNone(strings.Join(config.DefaultAgentSubscriptions.Global, ", ")))
	fmt.Printf("  Project subscriptions: %s\n", orNone(strings.Join(config.DefaultAgentSubscriptions.Project, ", ")))
	fmt.Printf("  Declared agents: %d\n", len(config.Agents))
	fmt.Printf("  Project links: %d\n", len(config.ProjectLinks))
	fmt.Println()

	fmt.Println("Sessions:")
	fmt.Printf("  Dedup window: %s\n", config.DedupWindow())
	fmt.Printf("  Retention: %s\n", config.SessionRetention())
	fmt.Println()

	fmt.Println("Semantic:")
	fmt.Printf("  Enabled: %t\n", config.Semantic.Enabled)
	if config.Semantic.Enabled {
		fmt.Printf("  Default profile: %s\n", config.Semantic.DefaultProfile)
		if config.Semantic.HalfLifeHoursOverride > 0 {
			fmt.Printf("  Half-life override: %.1fh\n", config.Semantic.HalfLifeHoursOverride)
		}
		fmt.Printf("  Index dir: %s\n", config.Semantic.IndexDir)
		if config.Semantic.Embedder.BaseURL != "" {
			fmt.Printf("  Embedder: %s (%s)\n", config.Semantic.Embedder.BaseURL, config.Semantic.Embedder.Model)
			if config.Semantic.Embedder.APIKey != "" {
				fmt.Printf("  API Key: %s\n", maskSecret(config.Semantic.Embedder.APIKey))
			} else {
				fmt.Printf("  API Key: (not set)\n")
			}
		} else {
			fmt.Printf("  Embedder: built-in (offline)\n")
		}
	}
	fmt.Println()

	fmt.Println("Maintenance:")
	fmt.Printf("  Enabled: %t\n", config.Maintenance.Enabled)
	if config.Maintenance.Enabled {
		fmt.Printf("  Schedule: %s\n", config.Maintenance.Schedule)
		fmt.Printf("  Trace retention: %s\n", config.TraceRetention())
		fmt.Printf("  Sync history keep: %d\n", config.Maintenance.SyncHistoryKeep)
		fmt.Printf("  Rebuild index: %t\n", config.Maintenance.RebuildIndex)
	}
	fmt.Println()

	fmt.Println("Logging:")
	fmt.Printf("  Level: %s\n", config.Logging.Level)
	fmt.Printf("  Format: %s\n", config.Logging.Format)
	if config.Logging.File != "" {
		fmt.Printf("  File: %s\n", config.Logging.File)
	}
}

func runConfigSetSecret(cmd *cobra.Command, args []string) {
	keyName := args[0]

	availableKeys := weftconfig.ListAvailableSecretKeys()
	validKeys := make(map[string]bool)
	for _, k := range availableKeys {
		validKeys[k] = true
	}

	if !validKeys[keyName] {
		fmt.Fprintf(os.Stderr, "Invalid key name: %s\n", keyName)
		fmt.Fprintf(os.Stderr, "Available keys:\n")
		for _, k := range availableKeys {
			fmt.Fprintf(os.Stderr, "  - %s\n", k)
		}
		os.Exit(1)
	}

	// Read secret from stdin (without echo)
	fmt.Printf("Enter %s (input hidden): ", keyName)
	secretBytes, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println() // New line after hidden input
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading input: %v\n", err)
		os.Exit(1)
	}

	secret := string(secretBytes)
	if secret == "" {
		fmt.Fprintf(os.Stderr, "Secret cannot be empty\n")
		os.Exit(1)
	}

	if err := weftconfig.SaveSecretToKeyring(keyName, secret); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving to keyring: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Saved %s to system keyring\n", keyName)
}

func runConfigDeleteSecret(cmd *cobra.Command, args []string) {
	keyName := args[0]

	if err := weftconfig.DeleteSecretFromKeyring(keyName); err != nil {
		fmt.Fprintf(os.Stderr, "Error deleting secret: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Deleted %s from system keyring\n", keyName)
}

func runConfigListSecrets(cmd *cobra.Command, args []string) {
	keys := weftconfig.ListAvailableSecretKeys()
	fmt.Println("Available secret keys:")
	fmt.Println("======================")
	for _, key := range keys {
		fmt.Printf("  - %s\n", key)
	}
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  weft config set-secret <key-name>")
	fmt.Println("  weft config delete-secret <key-name>")
}

func runConfigHistory(cmd *cobra.Command, args []string) {
	ref := parseAgentArg(args[0])

	st := openStore()
	defer st.Close()

	records, err := st.ListSyncHistory(cmd.Context(), ref, configHistoryLimit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading sync history: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Printf("No sync history for %s\n", ref.Handle())
		return
	}

	fmt.Printf("Sync history for %s:\n", ref.Handle())
	fmt.Println(strings.Repeat("-", 70))
	for _, rec := range records {
		applied := "applied"
		if !rec.Applied {
			applied = "FAILED"
		}
		fmt.Printf("%-20s %-10s %-10s %s\n",
			rec.CreatedAt.Format("2006-01-02 15:04:05"), rec.Source, shortDigest(rec.Digest), applied)
		if configHistoryDiff && rec.Diff != "" {
			for _, line := range strings.Split(strings.TrimRight(rec.Diff, "\n"), "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
	}
	fmt.Printf("\nShowing %d sync(s)\n", len(records))
}

// parseAgentArg splits an agent handle into a ref. A bare name is a
// global agent; "name:proj-..." is a project agent.
func parseAgentArg(arg string) types.AgentRef {
	name, scope, found := strings.Cut(arg, ":")
	if !found {
		return types.AgentRef{Name: arg, Scope: types.ScopeGlobal}
	}
	return types.AgentRef{Name: name, Scope: scope}
}

func shortDigest(d string) string {
	if len(d) > 8 {
		return d[:8]
	}
	return d
}

func seedNames(seeds []weftconfig.ChannelSeed) string {
	names := make([]string, len(seeds))
	for i, s := range seeds {
		names[i] = s.Name
	}
	return orNone(strings.Join(names, ", "))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// maskSecret masks a secret for display.
func maskSecret(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:4] + "..." + s[len(s)-4:]
}
