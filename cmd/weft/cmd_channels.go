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
	"strings"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/weft/pkg/channels"
	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
)

var channelsCmd = &cobra.Command{
	Use:   "channels",
	Short: "Manage channels",
	Long:  `Inspect and create channels in the local store.`,
}

var (
	channelsListScope    string
	channelsListArchived bool
	channelsListDMs      bool
)

var channelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List channels",
	Long: heredoc.Doc(`
		List channels across scopes.

		DM and archived channels are hidden by default. Restrict the
		listing to one scope with --scope (global or a project id such as
		proj-a1b2c3d4).`),
	Run: runChannelsList,
}

var (
	channelsCreateScope       string
	channelsCreateAccess      string
	channelsCreateDescription string
	channelsCreateDefault     bool
)

var channelsCreateCmd = &cobra.Command{
	Use:   "create [name]",
	Short: "Create a channel",
	Long: heredoc.Doc(`
		Create a channel in the given scope. Channel names are lowercase
		alphanumerics and hyphens.

		Access types:
		  open      anyone in scope can join and post
		  members   post requires membership, members invite
		  private   invisible to non-members

		Creating a channel that already exists is not an error.`),
	Args: cobra.ExactArgs(1),
	Run:  runChannelsCreate,
}

func init() {
	rootCmd.AddCommand(channelsCmd)
	channelsCmd.AddCommand(channelsListCmd)
	channelsCmd.AddCommand(channelsCreateCmd)

	channelsListCmd.Flags().StringVar(&channelsListScope, "scope", "", "restrict to one scope (global or a project id)")
	channelsListCmd.Flags().BoolVar(&channelsListArchived, "archived", false, "include archived channels")
	channelsListCmd.Flags().BoolVar(&channelsListDMs, "dms", false, "include DM channels")

	channelsCreateCmd.Flags().StringVar(&channelsCreateScope, "scope", types.ScopeGlobal, "channel scope (global or a project id)")
	channelsCreateCmd.Flags().StringVar(&channelsCreateAccess, "access", string(types.AccessOpen), "access type (open, members, private)")
	channelsCreateCmd.Flags().StringVar(&channelsCreateDescription, "description", "", "channel description")
	channelsCreateCmd.Flags().BoolVar(&channelsCreateDefault, "default", false, "mark as a default channel")
}

func runChannelsList(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()

	filter := store.ChannelFilter{IncludeArchived: channelsListArchived}
	if channelsListScope != "" {
		filter.Scopes = []string{channelsListScope}
	}
	if !channelsListDMs {
		filter.Types = []types.ChannelType{types.TypeChannel}
	}

	chans, err := st.ListChannels(cmd.Context(), filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing channels: %v\n", err)
		os.Exit(1)
	}
	if len(chans) == 0 {
		fmt.Println("No channels found.")
		return
	}

	fmt.Printf("%-34s %-14s %-9s %-8s %s\n", "HANDLE", "SCOPE", "ACCESS", "DEFAULT", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 90))
	for _, ch := range chans {
		def := ""
		if ch.IsDefault {
			def = "yes"
		}
		handle := ch.Handle
		if ch.Archived {
			handle += " *"
		}
		fmt.Printf("%-34s %-14s %-9s %-8s %s\n", handle, ch.Scope, ch.Access, def, ch.Description)
	}
	fmt.Printf("\nShowing %d channel(s)\n", len(chans))
	if channelsListArchived {
		fmt.Println("* archived")
	}
}

func runChannelsCreate(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()

	eng := channels.New(st, newLogger())
	ch, err := eng.Create(cmd.Context(), channels.CreateParams{
		Name:        args[0],
		Scope:       channelsCreateScope,
		Access:      types.AccessType(channelsCreateAccess),
		Description: channelsCreateDescription,
		Creator:     types.AgentRef{Name: types.InvitedBySystem},
		IsDefault:   channelsCreateDefault,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating channel: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("✓ Channel %s ready (%s access)\n", ch.Handle, ch.Access)
}
