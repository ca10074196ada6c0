package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/custodia-labs/corpora-cli/internal/core/ports/driving"
	"github.com/custodia-labs/corpora-cli/internal/logger"
)

// watchDebounce batches filesystem events before reindexing. Editors
// fire several events per save.
const watchDebounce = 2 * time.Second

var watchWithMetadata bool

var watchCmd = &cobra.Command{
	Use:   "watch [folder]",
	Short: "Watch a folder and reindex on changes",
	Long: `Indexes the folder, then watches it for file changes and reindexes
after each burst of changes settles. Stop with Ctrl-C.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchWithMetadata, "with-metadata", false, "run profile-driven metadata extraction on each pass")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if err := initServices(); err != nil {
		return err
	}

	root, err := resolveFolder(args[0])
	if err != nil {
		return err
	}

	opts := driving.IndexOptions{WithMetadata: watchWithMetadata}
	reindex := func() {
		summary, err := indexer.IndexFolder(cmd.Context(), root, opts)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "Reindex failed:", err)
			return
		}
		cmd.Printf("Reindexed: %d files, %d chunks, %d deleted\n",
			summary.IndexedFiles, summary.ChunksWritten, summary.DeletedFiles)
	}
	reindex()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watchRecursive(watcher, root); err != nil {
		return err
	}
	cmd.Printf("Watching %s\n", root)

	var timer *time.Timer
	pending := make(chan struct{}, 1)
	for {
		select {
		case <-cmd.Context().Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			logger.Debug("Filesystem event: %s", event)
			// New directories need their own watches.
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watchRecursive(watcher, event.Name)
				}
			}
			if timer == nil {
				timer = time.AfterFunc(watchDebounce, func() {
					pending <- struct{}{}
				})
			} else {
				timer.Reset(watchDebounce)
			}

		case <-pending:
			timer = nil
			reindex()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "Watch error:", err)
		}
	}
}

// watchRecursive adds watches for root and every directory below it.
func watchRecursive(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("watching %s: %w", path, err)
		}
		return nil
	})
}
