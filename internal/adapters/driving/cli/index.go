package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora-cli/internal/core/domain"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driving"
)

var (
	indexDiscoverSchema bool
	indexSchemaName     string
	indexWithMetadata   bool
	indexProfilePath    string
	indexJSON           bool
)

var indexCmd = &cobra.Command{
	Use:   "index [folder]",
	Short: "Index a folder of documents",
	Long: `Walks the folder, parses every supported file, chunks the text and
writes everything to the local index. Re-running reconciles changed and
deleted files. Files that disappear are soft-deleted, not removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().BoolVar(&indexDiscoverSchema, "discover-schema", false, "force schema discovery even when an active schema exists")
	indexCmd.Flags().StringVar(&indexSchemaName, "schema", "", "use a stored schema by name")
	indexCmd.Flags().BoolVar(&indexWithMetadata, "with-metadata", false, "run profile-driven metadata extraction")
	indexCmd.Flags().StringVar(&indexProfilePath, "profile", "", "path to a metadata profile JSON file (implies --with-metadata)")
	indexCmd.Flags().BoolVar(&indexJSON, "json", false, "output the summary as JSON")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	opts := driving.IndexOptions{
		DiscoverSchema: indexDiscoverSchema,
		SchemaName:     indexSchemaName,
		WithMetadata:   indexWithMetadata,
	}
	if indexProfilePath != "" {
		profile, err := loadProfile(indexProfilePath)
		if err != nil {
			return err
		}
		opts.Profile = profile
	}

	summary, err := indexer.IndexFolder(cmd.Context(), args[0], opts)
	if err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	if indexJSON {
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal summary: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Indexed %d files (%d chunks) into corpus %s\n",
		summary.IndexedFiles, summary.ChunksWritten, summary.CorpusID)
	if summary.SkippedFiles > 0 {
		cmd.Printf("Skipped %d unparseable files\n", summary.SkippedFiles)
	}
	if summary.DeletedFiles > 0 {
		cmd.Printf("%d documents are marked deleted\n", summary.DeletedFiles)
	}
	if summary.SchemaUsed != "" {
		cmd.Printf("Schema: %s\n", summary.SchemaUsed)
	}
	if summary.EmbeddingsWritten > 0 {
		cmd.Printf("Wrote %d embeddings\n", summary.EmbeddingsWritten)
	}
	cmd.Printf("Active documents: %d\n", summary.ActiveDocuments)
	return nil
}

func loadProfile(path string) (*domain.MetadataProfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	var profile domain.MetadataProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parsing profile %s: %w", path, err)
	}
	if _, err := profile.Normalize(); err != nil {
		return nil, err
	}
	return &profile, nil
}
