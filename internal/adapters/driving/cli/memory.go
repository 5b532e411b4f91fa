package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Manage memory notes",
	Long: `Memory notes are short statements you want recalled later. They are
embedded and indexed alongside document chunks and linked to their tags,
topics and mentioned entities.`,
}

var (
	memoryTags   []string
	memoryTopics []string
	memoryText   string
	memoryLimit  int
	memoryJSON   bool
)

var memoryAddCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a memory note",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryAdd,
}

var memoryGetCmd = &cobra.Command{
	Use:   "get [memory-id]",
	Short: "Show a memory note",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryGet,
}

var memoryUpdateCmd = &cobra.Command{
	Use:   "update [memory-id]",
	Short: "Update a memory note",
	Long: `Updates the text, tags or topics of a memory note. Only the flags
you pass are changed. Pass an empty value to clear tags or topics.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemoryUpdate,
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete [memory-id]",
	Short: "Delete a memory note",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemoryDelete,
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List memory notes, newest first",
	Args:  cobra.NoArgs,
	RunE:  runMemoryList,
}

func init() {
	memoryAddCmd.Flags().StringSliceVarP(&memoryTags, "tag", "t", nil, "tag (repeatable)")
	memoryAddCmd.Flags().StringSliceVar(&memoryTopics, "topic", nil, "topic (repeatable)")
	memoryAddCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")

	memoryGetCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")

	memoryUpdateCmd.Flags().StringVar(&memoryText, "text", "", "new text")
	memoryUpdateCmd.Flags().StringSliceVarP(&memoryTags, "tag", "t", nil, "replacement tags")
	memoryUpdateCmd.Flags().StringSliceVar(&memoryTopics, "topic", nil, "replacement topics")
	memoryUpdateCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")

	memoryListCmd.Flags().IntVarP(&memoryLimit, "limit", "n", 20, "maximum number of notes")
	memoryListCmd.Flags().BoolVar(&memoryJSON, "json", false, "output as JSON")

	memoryCmd.AddCommand(memoryAddCmd)
	memoryCmd.AddCommand(memoryGetCmd)
	memoryCmd.AddCommand(memoryUpdateCmd)
	memoryCmd.AddCommand(memoryDeleteCmd)
	memoryCmd.AddCommand(memoryListCmd)
	rootCmd.AddCommand(memoryCmd)
}

// memoryView is the JSON form of a memory note. Embeddings are omitted.
type memoryView struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags"`
	Topics    []string  `json:"topics"`
}

func viewMemory(m *domain.MemoryNote) memoryView {
	return memoryView{ID: m.ID, Text: m.Text, Timestamp: m.Timestamp, Tags: m.Tags, Topics: m.Topics}
}

func runMemoryAdd(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	note, err := memoryService.Add(cmd.Context(), args[0], memoryTags, memoryTopics)
	if err != nil {
		return fmt.Errorf("add failed: %w", err)
	}
	return outputMemory(cmd, note)
}

func runMemoryGet(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	note, err := memoryService.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("get failed: %w", err)
	}
	return outputMemory(cmd, note)
}

func runMemoryUpdate(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	var update driving.MemoryUpdate
	flags := cmd.Flags()
	if flags.Changed("text") {
		update.Text = &memoryText
	}
	if flags.Changed("tag") {
		tags := compact(memoryTags)
		update.Tags = &tags
	}
	if flags.Changed("topic") {
		topics := compact(memoryTopics)
		update.Topics = &topics
	}
	if update.Text == nil && update.Tags == nil && update.Topics == nil {
		return errors.New("nothing to update: pass --text, --tag or --topic")
	}

	note, err := memoryService.Update(cmd.Context(), args[0], update)
	if err != nil {
		return fmt.Errorf("update failed: %w", err)
	}
	return outputMemory(cmd, note)
}

func runMemoryDelete(cmd *cobra.Command, args []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	if err := memoryService.Delete(cmd.Context(), args[0]); err != nil {
		return fmt.Errorf("delete failed: %w", err)
	}
	cmd.Printf("%s deleted %s\n", okMark("✓"), args[0])
	return nil
}

func runMemoryList(cmd *cobra.Command, _ []string) error {
	if memoryService == nil {
		return errors.New("memory service not configured")
	}

	notes, err := memoryService.List(cmd.Context(), memoryLimit)
	if err != nil {
		return fmt.Errorf("list failed: %w", err)
	}

	if memoryJSON {
		views := make([]memoryView, len(notes))
		for i := range notes {
			views[i] = viewMemory(&notes[i])
		}
		return printJSON(cmd, views)
	}
	if len(notes) == 0 {
		cmd.Println("No memories found.")
		return nil
	}
	for i := range notes {
		cmd.Printf("%s  %s\n", notes[i].ID, snippet(notes[i].Text, quoteWidth(len(notes[i].ID)+2)))
	}
	return nil
}

func outputMemory(cmd *cobra.Command, note *domain.MemoryNote) error {
	if memoryJSON {
		return printJSON(cmd, viewMemory(note))
	}
	cmd.Printf("%s %s\n", okMark("✓"), note.ID)
	cmd.Printf("  %s\n", note.Text)
	if len(note.Tags) > 0 {
		cmd.Printf("  %s %s\n", dim("tags:"), strings.Join(note.Tags, ", "))
	}
	if len(note.Topics) > 0 {
		cmd.Printf("  %s %s\n", dim("topics:"), strings.Join(note.Topics, ", "))
	}
	return nil
}

// compact drops empty values so "--tag=" clears the list.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
