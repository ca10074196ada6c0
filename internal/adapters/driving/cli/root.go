// Package cli implements the corpora command line interface.
package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	configfile "github.com/custodia-labs/corpora-cli/internal/adapters/driven/config/file"
	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/embedding/ollama"
	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/embedding/openai"
	extractionllm "github.com/custodia-labs/corpora-cli/internal/adapters/driven/extraction/llm"
	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/parser/textfile"
	"github.com/custodia-labs/corpora-cli/internal/adapters/driven/storage/sqlite"
	"github.com/custodia-labs/corpora-cli/internal/chunker"
	"github.com/custodia-labs/corpora-cli/internal/core/ports/driven"
	"github.com/custodia-labs/corpora-cli/internal/core/services"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// version is set at build time via -ldflags.
var version = "dev"

var (
	flagVerbose bool
	flagConfig  string
)

// Wired services, built once per invocation by initServices.
var (
	initOnce sync.Once
	initErr  error

	appConfig   *configfile.Config
	store       *sqlite.Store
	fileParser  *textfile.Parser
	discovery   *services.SchemaDiscovery
	indexer     *services.IndexerService
	queryEngine *services.QueryEngine
)

var rootCmd = &cobra.Command{
	Use:   "corpora",
	Short: "Index and search local document folders",
	Long: `Corpora indexes folders of text documents into a local SQLite
database and retrieves them with combined semantic and metadata search.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.SetVerbose(flagVerbose)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default ~/.corpora/config.toml)")
}

// Execute runs the CLI.
func Execute() {
	defer func() {
		if store != nil {
			store.Close()
		}
	}()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// initServices wires the adapters and core services once. Commands that
// touch the index call this at the top of their RunE.
func initServices() error {
	initOnce.Do(func() {
		appConfig, initErr = configfile.Load(flagConfig)
		if initErr != nil {
			return
		}

		store, initErr = sqlite.NewStore(appConfig.DataDir)
		if initErr != nil {
			return
		}

		fileParser = textfile.New()

		ch, err := chunker.New(appConfig.Chunking.ChunkSize, appConfig.Chunking.Overlap)
		if err != nil {
			initErr = err
			return
		}

		embedder, err := buildEmbedder(appConfig)
		if err != nil {
			initErr = err
			return
		}
		extractor, generator := buildExtractor(appConfig)

		metadata := services.NewMetadataService(extractor, generator)
		if appConfig.Extraction.MaxChars > 0 {
			metadata.SetMaxChars(appConfig.Extraction.MaxChars)
		}
		discovery = services.NewSchemaDiscovery(fileParser, metadata)
		indexer = services.NewIndexerService(store, fileParser, ch, metadata, discovery, embedder)
		queryEngine = services.NewQueryEngine(store, embedder)
	})
	return initErr
}

func buildEmbedder(cfg *configfile.Config) (driven.EmbeddingService, error) {
	switch cfg.Embedding.Provider {
	case "openai":
		return openai.NewEmbeddingService(openai.Config{
			APIKey:            cfg.Embedding.APIKey,
			BaseURL:           cfg.Embedding.BaseURL,
			Model:             cfg.Embedding.Model,
			RequestsPerMinute: cfg.Embedding.RequestsPerMinute,
		})
	case "ollama":
		return ollama.NewEmbeddingService(ollama.Config{
			BaseURL: cfg.Embedding.BaseURL,
			Model:   cfg.Embedding.Model,
		}), nil
	default:
		return nil, nil
	}
}

func buildExtractor(cfg *configfile.Config) (driven.EntityExtractor, driven.ProfileGenerator) {
	if !cfg.Extraction.Enabled || cfg.Extraction.APIKey == "" {
		return nil, nil
	}
	extractor, err := extractionllm.New(extractionllm.Config{
		APIKey:  cfg.Extraction.APIKey,
		BaseURL: cfg.Extraction.BaseURL,
		Model:   cfg.Extraction.Model,
	})
	if err != nil {
		logger.Warn("Extraction disabled: %v", err)
		return nil, nil
	}
	return extractor, extractor
}

// resolveFolder turns a folder argument into a resolved absolute path.
func resolveFolder(folder string) (string, error) {
	root, err := filepath.Abs(folder)
	if err != nil {
		return "", fmt.Errorf("resolving folder path: %w", err)
	}
	return root, nil
}

// resolveCorpusID maps a folder argument to its corpus id. The folder
// must have been indexed before.
func resolveCorpusID(cmd *cobra.Command, folder string) (string, error) {
	root, err := resolveFolder(folder)
	if err != nil {
		return "", err
	}
	id, err := store.GetCorpusID(cmd.Context(), root)
	if err != nil {
		return "", fmt.Errorf("no index found for %s, run `corpora index %s` first", root, folder)
	}
	return id, nil
}
