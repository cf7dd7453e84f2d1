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
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/MakeNowJust/heredoc"
	"github.com/spf13/cobra"

	"github.com/teradata-labs/weft/pkg/store"
	"github.com/teradata-labs/weft/pkg/types"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage projects and project links",
	Long:  `Inspect registered projects and the visibility links between them.`,
}

var projectsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered projects",
	Run:   runProjectsList,
}

var (
	projectsLinkType   string
	projectsLinkRemove bool
)

var projectsLinkCmd = &cobra.Command{
	Use:   "link [source] [target]",
	Short: "Link two projects",
	Long: heredoc.Doc(`
		Link two projects so their agents can see each other and join each
		other's open channels. Endpoints are project ids or paths; a path
		registers the project if it is new.

		Link types:
		  bidirectional   both sides see each other (default)
		  a-to-b          source sees target only
		  b-to-a          target sees source only

		Links can also be declared in the config file under project_links,
		which reconciles them at session start.

		Examples:
		  weft projects link ~/src/widgets ~/src/gadgets
		  weft projects link proj-a1b2c3d4 proj-e5f6a7b8 --type a-to-b
		  weft projects link ~/src/widgets ~/src/gadgets --remove`),
	Args: cobra.ExactArgs(2),
	Run:  runProjectsLink,
}

func init() {
	rootCmd.AddCommand(projectsCmd)
	projectsCmd.AddCommand(projectsListCmd)
	projectsCmd.AddCommand(projectsLinkCmd)

	projectsLinkCmd.Flags().StringVar(&projectsLinkType, "type", "bidirectional", "link type (bidirectional, a-to-b, b-to-a)")
	projectsLinkCmd.Flags().BoolVar(&projectsLinkRemove, "remove", false, "remove the link instead of creating it")
}

func runProjectsList(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()
	ctx := cmd.Context()

	projects, err := st.ListProjects(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error listing projects: %v\n", err)
		os.Exit(1)
	}
	if len(projects) == 0 {
		fmt.Println("No projects registered.")
		return
	}

	fmt.Printf("%-14s %-20s %-24s %-14s %s\n", "ID", "NAME", "LINKED TO", "LAST ACTIVE", "PATH")
	fmt.Println(strings.Repeat("-", 100))
	for _, p := range projects {
		linked, err := st.LinkedProjects(ctx, p.ID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading links for %s: %v\n", p.ID, err)
			os.Exit(1)
		}
		links := strings.Join(linked, ",")
		if links == "" {
			links = "-"
		}
		fmt.Printf("%-14s %-20s %-24s %-14s %s\n",
			p.ID, p.Name, links, formatTimeAgo(p.LastActiveAt), p.Path)
	}
	fmt.Printf("\nShowing %d project(s)\n", len(projects))
}

func runProjectsLink(cmd *cobra.Command, args []string) {
	st := openStore()
	defer st.Close()
	ctx := cmd.Context()

	source, err := resolveProject(ctx, st, args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving %q: %v\n", args[0], err)
		os.Exit(1)
	}
	target, err := resolveProject(ctx, st, args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error resolving %q: %v\n", args[1], err)
		os.Exit(1)
	}

	if projectsLinkRemove {
		removed, err := st.UnlinkProjects(ctx, source, target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error removing link: %v\n", err)
			os.Exit(1)
		}
		if !removed {
			fmt.Printf("No link between %s and %s\n", source, target)
			return
		}
		fmt.Printf("✓ Removed link %s <-> %s\n", source, target)
		return
	}

	linkType, err := parseLinkType(projectsLinkType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := st.LinkProjects(ctx, source, target, linkType); err != nil {
		fmt.Fprintf(os.Stderr, "Error linking projects: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Linked %s %s %s\n", source, linkArrow(linkType), target)
}

// resolveProject turns a project id or path into a project id,
// registering paths that are new.
func resolveProject(ctx context.Context, st *store.Store, ref string) (string, error) {
	if types.IsProjectID(ref) {
		return ref, nil
	}
	project, err := st.RegisterProject(ctx, ref)
	if err != nil {
		return "", err
	}
	return project.ID, nil
}

func parseLinkType(s string) (types.ProjectLinkType, error) {
	switch s {
	case "bidirectional", "":
		return types.LinkBidirectional, nil
	case "a-to-b", "a_to_b":
		return types.LinkAToB, nil
	case "b-to-a", "b_to_a":
		return types.LinkBToA, nil
	default:
		return "", fmt.Errorf("unknown link type %q (bidirectional, a-to-b, b-to-a)", s)
	}
}

func linkArrow(t types.ProjectLinkType) string {
	switch t {
	case types.LinkAToB:
		return "->"
	case types.LinkBToA:
		return "<-"
	default:
		return "<->"
	}
}

// formatTimeAgo formats a time as "X ago" (e.g., "2 hours ago")
func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	duration := time.Since(t)

	switch {
	case duration < time.Minute:
		return "just now"
	case duration < time.Hour:
		minutes := int(duration.Minutes())
		if minutes == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", minutes)
	case duration < 24*time.Hour:
		hours := int(duration.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(duration.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}
