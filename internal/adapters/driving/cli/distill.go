package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/openkl/internal/core/domain"
	"github.com/custodia-labs/openkl/internal/core/ports/driving"
)

var (
	distillFrom     []string
	distillTags     []string
	distillTopics   []string
	distillEntities []string
	distillJSON     bool
)

var distillCmd = &cobra.Command{
	Use:   "distill [content]",
	Short: "Create a memory note derived from citations",
	Long: `Creates a memory note and links it to the citations it was derived
from, its tags, topics and mentioned entities. Either everything is
written or nothing is.

Entities are given as name:type, for example --entity "Ada Lovelace:person".

Examples:
  ok distill "The cache is invalidated on every deploy" --from cite-abc123
  ok distill "Q3 revenue grew 12%" --from cite-abc --from cite-def --topic finance`,
	Args: cobra.ExactArgs(1),
	RunE: runDistill,
}

var distillPromptsCmd = &cobra.Command{
	Use:   "prompts [name]",
	Short: "List distillation prompts or print one",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runDistillPrompts,
}

func init() {
	distillCmd.Flags().StringSliceVar(&distillFrom, "from", nil, "source citation id (repeatable)")
	distillCmd.Flags().StringSliceVarP(&distillTags, "tag", "t", nil, "tag (repeatable)")
	distillCmd.Flags().StringSliceVar(&distillTopics, "topic", nil, "topic (repeatable)")
	distillCmd.Flags().StringArrayVar(&distillEntities, "entity", nil, "mentioned entity as name:type (repeatable)")
	distillCmd.Flags().BoolVar(&distillJSON, "json", false, "output as JSON")

	distillCmd.AddCommand(distillPromptsCmd)
	rootCmd.AddCommand(distillCmd)
}

func runDistill(cmd *cobra.Command, args []string) error {
	if distillService == nil {
		return errors.New("distill service not configured")
	}

	entities, err := parseEntities(distillEntities)
	if err != nil {
		return err
	}

	note, err := distillService.Distill(cmd.Context(), driving.DistillRequest{
		Content:       args[0],
		SourceCiteIDs: distillFrom,
		Tags:          distillTags,
		Topics:        distillTopics,
		Entities:      entities,
	})
	if err != nil {
		return fmt.Errorf("distill failed: %w", err)
	}

	if distillJSON {
		return printJSON(cmd, viewMemory(note))
	}
	cmd.Printf("%s %s\n", okMark("✓"), note.ID)
	cmd.Printf("  %s\n", note.Text)
	if len(distillFrom) > 0 {
		cmd.Printf("  %s %s\n", dim("derived from:"), strings.Join(distillFrom, ", "))
	}
	return nil
}

// parseEntities reads name:type pairs. A missing type is left empty.
func parseEntities(values []string) ([]domain.Entity, error) {
	entities := make([]domain.Entity, 0, len(values))
	for _, v := range values {
		name, typ, _ := strings.Cut(v, ":")
		name = strings.TrimSpace(name)
		if name == "" {
			return nil, fmt.Errorf("invalid entity %q: name is required", v)
		}
		entities = append(entities, domain.NewEntity(name, strings.TrimSpace(typ)))
	}
	return entities, nil
}

func runDistillPrompts(cmd *cobra.Command, args []string) error {
	if distillService == nil {
		return errors.New("distill service not configured")
	}

	if len(args) == 1 {
		prompt, err := distillService.Prompt(args[0])
		if err != nil {
			return fmt.Errorf("prompt %s: %w", args[0], err)
		}
		cmd.Println(prompt)
		return nil
	}

	names := distillService.Prompts()
	if len(names) == 0 {
		cmd.Println("No prompts available.")
		return nil
	}
	for _, name := range names {
		cmd.Println(name)
	}
	return nil
}
