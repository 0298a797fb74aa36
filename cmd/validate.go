package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredlabs/alfred/internal/knowledge"
)

var validateCmd = &cobra.Command{
	Use:   "validate [knowledge-base.json]",
	Short: "Validate a knowledge base file without serving",
	Long: `Validate parses a knowledge base file and runs the same checks the
server runs at startup: intent ids are unique after normalization, every
intent has patterns and responses, thresholds are within [0,1], and at
least one fallback response is defined. No embeddings are generated.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		path := "data/knowledge-base.json"
		if len(args) > 0 {
			path = args[0]
		}
		exitOnError(runValidate(path))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(path string) error {
	doc, err := knowledge.ReadDocument(path)
	if err != nil {
		return err
	}

	patterns := 0
	for _, in := range doc.Intents {
		patterns += len(in.Patterns)
	}

	fmt.Printf("%s is valid\n", path)
	fmt.Printf("  version:    %s\n", doc.Version)
	fmt.Printf("  intents:    %d\n", len(doc.Intents))
	fmt.Printf("  patterns:   %d\n", patterns)
	fmt.Printf("  threshold:  %.2f\n", doc.Metadata.SearchConfig.DefaultConfidenceThreshold)
	fmt.Printf("  fallbacks:  %d\n", len(doc.Metadata.FallbackResponses))

	if verbose {
		for _, in := range doc.Intents {
			fmt.Printf("  - %s (%s): %d patterns, %d responses\n",
				in.ID, in.Metadata.Category, len(in.Patterns), len(in.Responses))
		}
	}
	return nil
}
