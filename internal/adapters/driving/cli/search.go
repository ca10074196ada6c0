package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
)

var (
	searchFilters        string
	searchLimit          int
	searchJSON           bool
	searchExplainFilters bool
)

var searchCmd = &cobra.Command{
	Use:   "search [folder] [query]",
	Short: "Search an indexed folder",
	Long: `Runs combined retrieval over a previously indexed folder: semantic
(or keyword) search over chunk text plus metadata filters over document
fields, merged into one ranked result list per document.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchFilters, "filters", "f", "", "metadata filter expression, e.g. 'document_type=agreement and file_size_bytes>=100'")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "maximum number of results")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output results as JSON")
	searchCmd.Flags().BoolVar(&searchExplainFilters, "explain-filters", false, "print the parsed filter conditions and exit")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	corpusID, err := resolveCorpusID(cmd, args[0])
	if err != nil {
		return err
	}
	var query string
	if len(args) > 1 {
		query = args[1]
	}

	if searchExplainFilters {
		lines, err := queryEngine.ExplainFilters(cmd.Context(), corpusID, searchFilters)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			cmd.Println("No filter conditions.")
			return nil
		}
		for _, line := range lines {
			cmd.Println(line)
		}
		return nil
	}

	results, err := queryEngine.Search(cmd.Context(), corpusID, query, searchFilters, searchLimit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if searchJSON {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal results: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}
	return outputSearchTable(cmd, results)
}

func outputSearchTable(cmd *cobra.Command, results []domain.RankedHit) error {
	if len(results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	cmd.Println("Results:")
	cmd.Println()
	for i, hit := range results {
		snippet := hit.Text
		if len(snippet) > 160 {
			snippet = snippet[:160] + "..."
		}
		cmd.Printf("[%d] %s (%s, score %.2f)\n", i+1, hit.RelativePath, hit.MatchedBy(), hit.CombinedScore())
		cmd.Printf("    %s\n\n", snippet)
	}
	return nil
}
