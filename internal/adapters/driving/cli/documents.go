package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var documentsDeleted bool

var documentsCmd = &cobra.Command{
	Use:   "documents [folder]",
	Short: "List indexed documents for a folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocuments,
}

func init() {
	documentsCmd.Flags().BoolVar(&documentsDeleted, "deleted", false, "include soft-deleted documents")
	rootCmd.AddCommand(documentsCmd)
}

func runDocuments(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	corpusID, err := resolveCorpusID(cmd, args[0])
	if err != nil {
		return err
	}

	docs, err := store.ListDocuments(cmd.Context(), corpusID, documentsDeleted)
	if err != nil {
		return fmt.Errorf("listing documents: %w", err)
	}
	if len(docs) == 0 {
		cmd.Println("No documents indexed.")
		return nil
	}

	for _, doc := range docs {
		marker := " "
		if doc.IsDeleted {
			marker = "D"
		}
		cmd.Printf("%s %-50s %8d bytes  %s\n", marker, doc.RelativePath,
			doc.FileSize, doc.FileMtime.Format("2006-01-02 15:04"))
	}
	cmd.Printf("\n%d documents\n", len(docs))
	return nil
}
