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
	"go.uber.org/zap"

	"github.com/teradata-labs/weft/pkg/channels"
	"github.com/teradata-labs/weft/pkg/types"
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "Manage registered agents",
	Long:  `Inspect and register the agents known to this host.`,
}

var agentsListScope string

var agentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered agents",
	Run:   runAgentsList,
}

var (
	agentsRegisterProject         string
	agentsRegisterDescription     string
	agentsRegisterDMPolicy        string
	agentsRegisterDiscoverability string
	agentsRegisterSubscribe       []string
)

var agentsRegisterCmd = &cobra.Command{
	Use:   "register [name]",
	Short: "Register an agent",
	Long: heredoc.Doc(`
		Register an agent by hand, join it to the default channels, and
		create its notes channel. Agents declared in the config file are
		registered automatically at session start; this command covers
		one-off agents.

		With --project the agent is scoped to that project (given as a
		project id or a path); otherwise it is global.

		Examples:
		  weft agents register assistant --description "General helper"
		  weft agents register reviewer --project ~/src/widgets --dm-policy restricted
		  weft agents register ops --subscribe incidents,deploys`),
	Args: cobra.ExactArgs(1),
	Run:  runAgentsRegister,
}

func init() {
	rootCmd.AddCommand(agentsCmd)
	agentsCmd.AddCommand(agentsListCmd)
	agentsCmd.AddCommand(agentsRegisterCmd)

	agentsListCmd.Flags().StringVar(&agentsListScope, "scope", "", "restrict to one scope (global or a project id)")

	agentsRegisterCmd.Flags().StringVar(&agentsRegisterProject, "project", "", "project id or path (default: global)")
	agentsRegisterCmd.Flags().StringVar(&agentsRegisterDescription, "description", "", "what the agent does, shown in discovery")
	agentsRegisterCmd.Flags().StringVar(&agentsRegisterDMPolicy, "dm-policy", "", "DM policy (open, restricted, closed)")
	agentsRegisterCmd.Flags().StringVar(&agentsRegisterDiscoverability, "discoverability", "", "discoverability (public, project, private)")
	agentsRegisterCmd.Flags().StringSliceVar(&agentsRegisterSubscribe, "subscribe", nil, "channels to join besides the defaults")
}

func runAgentsList(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()

	agents, err := st.ListAgents(cmd.Context(), agentsListScope)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing agents: %v\n", err)
		os.Exit(1)
	}
	if len(agents) == 0 {
		fmt.Println("No agents registered.")
		return
	}

	fmt.Printf("%-28s %-9s %-11s %-9s %s\n", "HANDLE", "STATUS", "DM POLICY", "VISIBLE", "DESCRIPTION")
	fmt.Println(strings.Repeat("-", 90))
	for _, a := range agents {
		ref := types.AgentRef{Name: a.Name, Scope: a.Scope}
		fmt.Printf("%-28s %-9s %-11s %-9s %s\n",
			ref.Handle(), a.Status, a.DMPolicy, a.Discoverability, a.Description)
	}
	fmt.Printf("\nShowing %d agent(s)\n", len(agents))
}

func runAgentsRegister(cmd *cobra.Command, args []string) {
	name := args[0]
	ctx := cmd.Context()

	st := openStore()
	defer st.Close()
	logger := newLogger()

	scope := types.ScopeGlobal
	if agentsRegisterProject != "" {
		if types.IsProjectID(agentsRegisterProject) {
			scope = agentsRegisterProject
		} else {
			project, err := st.RegisterProject(ctx, agentsRegisterProject)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error registering project: %v\n", err)
				os.Exit(1)
			}
			scope = project.ID
		}
	}

	agent := &types.Agent{
		Name:            name,
		Scope:           scope,
		Description:     agentsRegisterDescription,
		DMPolicy:        types.DMPolicy(agentsRegisterDMPolicy),
		Discoverability: types.Discoverability(agentsRegisterDiscoverability),
	}
	if err := st.UpsertAgent(ctx, agent); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering agent: %v\n", err)
		os.Exit(1)
	}
	ref := types.AgentRef{Name: name, Scope: scope}

	eng := channels.New(st, logger)
	result, err := eng.ApplyDefaults(ctx, ref, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error joining default channels: %v\n", err)
		os.Exit(1)
	}
	notes, err := eng.EnsureNotes(ctx, ref)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating notes channel: %v\n", err)
		os.Exit(1)
	}

	joined := result.Joined
	for _, sub := range agentsRegisterSubscribe {
		handle := sub
		if !strings.Contains(sub, ":") {
			if ref.IsGlobal() {
				handle = types.GlobalHandle(sub)
			} else {
				handle = types.ProjectHandle(scope, sub)
			}
		}
		if err := eng.Join(ctx, ref, handle); err != nil {
			logger.Warn("subscription failed", zap.String("channel", handle), zap.Error(err))
			continue
		}
		joined = append(joined, handle)
	}

	fmt.Printf("✓ Registered agent %s\n", ref.Handle())
	if len(joined) > 0 {
		fmt.Printf("  channels: %s\n", strings.Join(joined, ", "))
	}
	fmt.Printf("  notes: %s\n", notes.Handle)
}
