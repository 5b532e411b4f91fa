package cli

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
)

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Query and maintain the knowledge graph",
}

var (
	graphLimit int
	graphJSON  bool
)

var graphQueryCmd = &cobra.Command{
	Use:   "query [pattern]",
	Short: "Match a path pattern",
	Long: `Evaluates a path pattern against the graph and prints each match.

Patterns alternate node kinds and directed edge kinds:

  MemoryNote -HasTopic-> Topic <-HasTopic- MemoryNote
  Chunk -PartOf-> Doc
  MemoryNote -DerivedFrom-> Chunk

Node kinds: Doc, Chunk, MemoryNote, Entity, Topic. A node kind may be
written as Kind:id to anchor the match, for example Doc:3f2a9c.`,
	Args: cobra.ExactArgs(1),
	RunE: runGraphQuery,
}

var graphNodeCmd = &cobra.Command{
	Use:   "node [id]",
	Short: "Show a node",
	Args:  cobra.ExactArgs(1),
	RunE:  runGraphNode,
}

var graphStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Count nodes, edges and citations",
	Args:  cobra.NoArgs,
	RunE:  runGraphStats,
}

var graphRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the keyword and vector indexes",
	Args:  cobra.NoArgs,
	RunE:  runGraphRebuild,
}

func init() {
	graphQueryCmd.Flags().IntVarP(&graphLimit, "limit", "n", 50, "maximum number of matches")
	graphQueryCmd.Flags().BoolVar(&graphJSON, "json", false, "output as JSON")
	graphNodeCmd.Flags().BoolVar(&graphJSON, "json", false, "output as JSON")
	graphStatsCmd.Flags().BoolVar(&graphJSON, "json", false, "output as JSON")

	graphCmd.AddCommand(graphQueryCmd)
	graphCmd.AddCommand(graphNodeCmd)
	graphCmd.AddCommand(graphStatsCmd)
	graphCmd.AddCommand(graphRebuildCmd)
	rootCmd.AddCommand(graphCmd)
}

func runGraphQuery(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	paths, err := graphService.Query(cmd.Context(), args[0], graphLimit)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if graphJSON {
		return printJSON(cmd, paths)
	}
	if len(paths) == 0 {
		cmd.Println("No matches.")
		return nil
	}
	for _, p := range paths {
		cmd.Println(strings.Join(p, dim(" -> ")))
	}
	return nil
}

func runGraphNode(cmd *cobra.Command, args []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	node, err := graphService.Node(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("node lookup failed: %w", err)
	}

	if graphJSON {
		return printJSON(cmd, nodeView(node))
	}
	cmd.Printf("%s %s\n", heading(string(node.Kind)), node.ID())
	switch {
	case node.Doc != nil:
		cmd.Printf("  %s %s\n", dim("path:"), node.Doc.Path)
		cmd.Printf("  %s %s\n", dim("sha256:"), node.Doc.SHA256)
		if node.Doc.Retired {
			cmd.Printf("  %s\n", noteMark("retired"))
		}
	case node.Chunk != nil:
		cmd.Printf("  %s %s\n", dim("doc:"), node.Chunk.DocID)
		cmd.Printf("  %s %d-%d\n", dim("span:"), node.Chunk.Span.Start, node.Chunk.Span.End)
		cmd.Printf("  %q\n", snippet(node.Chunk.Text, 200))
	case node.Memory != nil:
		cmd.Printf("  %s\n", node.Memory.Text)
	case node.Entity != nil:
		cmd.Printf("  %s %s\n", dim("type:"), node.Entity.Type)
		cmd.Printf("  %s %s\n", dim("name:"), node.Entity.Name)
	case node.Topic != nil:
		cmd.Printf("  %s %s\n", dim("name:"), node.Topic.Name)
	}
	return nil
}

// nodeView flattens a node for JSON output.
func nodeView(n domain.Node) map[string]any {
	view := map[string]any{"kind": n.Kind, "id": n.ID()}
	switch {
	case n.Doc != nil:
		view["path"] = n.Doc.Path
		view["sha256"] = n.Doc.SHA256
		view["retired"] = n.Doc.Retired
	case n.Chunk != nil:
		view["doc_id"] = n.Chunk.DocID
		view["start"] = n.Chunk.Span.Start
		view["end"] = n.Chunk.Span.End
		view["text"] = n.Chunk.Text
	case n.Memory != nil:
		view["text"] = n.Memory.Text
		view["tags"] = n.Memory.Tags
		view["topics"] = n.Memory.Topics
	case n.Entity != nil:
		view["name"] = n.Entity.Name
		view["type"] = n.Entity.Type
	case n.Topic != nil:
		view["name"] = n.Topic.Name
	}
	return view
}

func runGraphStats(cmd *cobra.Command, _ []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	stats, err := graphService.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats failed: %w", err)
	}

	if graphJSON {
		return printJSON(cmd, stats)
	}
	cmd.Println(heading("Nodes"))
	for _, k := range sortedKeys(stats.Nodes) {
		cmd.Printf("  %-12s %d\n", k, stats.Nodes[k])
	}
	cmd.Println(heading("Edges"))
	for _, k := range sortedKeys(stats.Edges) {
		cmd.Printf("  %-12s %d\n", k, stats.Edges[k])
	}
	cmd.Printf("%s %d\n", heading("Citations"), stats.Citations)
	return nil
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func runGraphRebuild(cmd *cobra.Command, _ []string) error {
	if graphService == nil {
		return errors.New("graph service not configured")
	}

	if err := graphService.RebuildIndexes(cmd.Context()); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	cmd.Printf("%s indexes rebuilt\n", okMark("✓"))
	return nil
}
