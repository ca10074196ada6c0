package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	schemaShowJSON       bool
	schemaDiscoverSave   bool
	schemaDiscoverFields bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and discover metadata schemas",
}

var schemaListCmd = &cobra.Command{
	Use:   "list [folder]",
	Short: "List the schemas of an indexed folder",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaList,
}

var schemaShowCmd = &cobra.Command{
	Use:   "show [folder] [name]",
	Short: "Show a schema; omit the name for the active schema",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runSchemaShow,
}

var schemaDiscoverCmd = &cobra.Command{
	Use:   "discover [folder]",
	Short: "Discover a schema from a folder without indexing",
	Args:  cobra.ExactArgs(1),
	RunE:  runSchemaDiscover,
}

func init() {
	schemaShowCmd.Flags().BoolVar(&schemaShowJSON, "json", false, "output the schema as JSON")
	schemaDiscoverCmd.Flags().BoolVar(&schemaDiscoverSave, "save", false, "save the discovered schema as active")
	schemaDiscoverCmd.Flags().BoolVar(&schemaDiscoverFields, "with-metadata", false, "include metadata profile fields")
	schemaCmd.AddCommand(schemaListCmd, schemaShowCmd, schemaDiscoverCmd)
	rootCmd.AddCommand(schemaCmd)
}

func runSchemaList(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}
	corpusID, err := resolveCorpusID(cmd, args[0])
	if err != nil {
		return err
	}

	schemas, err := store.ListSchemas(cmd.Context(), corpusID)
	if err != nil {
		return fmt.Errorf("listing schemas: %w", err)
	}
	if len(schemas) == 0 {
		cmd.Println("No schemas stored.")
		return nil
	}

	for _, schema := range schemas {
		marker := " "
		if schema.IsActive {
			marker = "*"
		}
		cmd.Printf("%s %-30s %3d fields  %s\n", marker, schema.Name,
			len(schema.Fields), schema.CreatedAt.Format("2006-01-02"))
	}
	return nil
}

func runSchemaShow(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}
	corpusID, err := resolveCorpusID(cmd, args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	schema, err := store.GetActiveSchema(ctx, corpusID)
	if len(args) > 1 {
		schema, err = store.GetSchemaByName(ctx, corpusID, args[1])
	}
	if err != nil {
		return fmt.Errorf("loading schema: %w", err)
	}

	if schemaShowJSON {
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal schema: %w", err)
		}
		cmd.Println(string(data))
		return nil
	}

	cmd.Printf("Schema: %s\n", schema.Name)
	if schema.Description != "" {
		cmd.Println(schema.Description)
	}
	cmd.Println()
	for _, field := range schema.Fields {
		required := ""
		if field.Required {
			required = " (required)"
		}
		cmd.Printf("  %-25s %-8s%s\n", field.Name, field.Type, required)
		if len(field.Enum) > 0 {
			cmd.Printf("    %v\n", field.Enum)
		}
	}
	if schema.Profile != nil {
		cmd.Printf("\nMetadata profile: %s\n", schema.Profile.Name)
	}
	return nil
}

func runSchemaDiscover(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	ctx := cmd.Context()
	root, err := resolveFolder(args[0])
	if err != nil {
		return err
	}
	corpusID, err := store.GetOrCreateCorpus(ctx, root)
	if err != nil {
		return fmt.Errorf("resolving corpus: %w", err)
	}

	schema, err := discovery.Discover(ctx, corpusID, root, schemaDiscoverFields, nil)
	if err != nil {
		return fmt.Errorf("discovering schema: %w", err)
	}

	if schemaDiscoverSave {
		schema.IsActive = true
		if _, err := store.SaveSchema(ctx, schema); err != nil {
			return fmt.Errorf("saving schema: %w", err)
		}
		cmd.Printf("Saved schema %q as active\n", schema.Name)
	}

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal schema: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
