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
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/maintenance"
	"github.com/teradata-labs/weft/pkg/semantic"
)

var pruneRebuildIndex bool

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run a retention sweep now",
	Long: heredoc.Doc(`
		Run one maintenance sweep immediately: expired sessions, stale
		tool-call dedup records, old trace data, and surplus sync history
		are removed per the configured retention.

		The same sweep runs on a schedule inside weft-mcp when
		maintenance.enabled is set. This command covers one-off cleanups
		and hosts that drive maintenance from an external cron.`),
	Run: runPrune,
}

func init() {
	rootCmd.AddCommand(pruneCmd)
	pruneCmd.Flags().BoolVar(&pruneRebuildIndex, "rebuild-index", false, "rebuild the vector index from the store")
}

func runPrune(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()
	logger := newLogger()

	rebuild := pruneRebuildIndex || config.Maintenance.RebuildIndex
	mcfg := maintenance.Config{
		Schedule:         config.Maintenance.Schedule,
		SessionRetention: config.SessionRetention(),
		TraceRetention:   config.TraceRetention(),
		SyncHistoryKeep:  config.Maintenance.SyncHistoryKeep,
		RebuildIndex:     rebuild,
	}

	var opts []maintenance.Option
	if rebuild {
		if !config.Semantic.Enabled {
			fmt.Fprintln(os.Stderr, "Cannot rebuild index: semantic search is disabled")
			os.Exit(1)
		}
		idx, err := openSemanticIndex(logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening vector index: %v\n", err)
			os.Exit(1)
		}
		opts = append(opts, maintenance.WithIndex(idx))
	}

	sweep, err := maintenance.New(st, mcfg, logger, opts...).RunOnce(cmd.Context())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error running sweep: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Sweep complete:")
	fmt.Printf("  Sessions removed: %d\n", sweep.Sessions)
	fmt.Printf("  Tool calls removed: %d\n", sweep.ToolCalls)
	fmt.Printf("  Sync records removed: %d\n", sweep.SyncRuns)
	fmt.Printf("  Trace rows removed: %d\n", sweep.Traces)
	if rebuild {
		fmt.Printf("  Messages reindexed: %d\n", sweep.Reindexed)
	}
	fmt.Printf("  Took: %s\n", sweep.Took.Round(time.Millisecond))

	for _, e := range sweep.Errors {
		fmt.Fprintf(os.Stderr, "warning: %s\n", e)
	}
	if len(sweep.Errors) > 0 {
		os.Exit(1)
	}
}

// openSemanticIndex opens the configured vector index with the same
// embedder weft-mcp would use.
func openSemanticIndex(logger *zap.Logger) (*semantic.Index, error) {
	cfg := semantic.Config{Path: config.Semantic.IndexDir, Compress: true}
	if config.Semantic.Embedder.BaseURL != "" {
		embedder, err := semantic.NewRemoteEmbedder(semantic.RemoteConfig{
			BaseURL:   config.Semantic.Embedder.BaseURL,
			APIKey:    config.Semantic.Embedder.APIKey,
			Model:     config.Semantic.Embedder.Model,
			Dimension: config.Semantic.Embedder.Dimension,
		})
		if err != nil {
			return nil, err
		}
		cfg.Embedder = embedder
	}
	return semantic.NewIndex(cfg, logger)
}
