package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/pygate/pygate/internal/engine"
	"github.com/pygate/pygate/internal/rules"
)

const watchDebounce = 300 * time.Millisecond

var watchSchema string

var watchCmd = &cobra.Command{
	Use:   "watch [dir]",
	Short: "Watch a directory and rescan changed Python files",
	Long: `Watch a directory tree and rescan Python files as they change.
Useful as a feedback loop while code is being written or generated.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) > 0 {
			root = args[0]
		}
		return runWatch(root, nil)
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchSchema, "schema", "",
		"path to .gate_schema.yaml (default: nearest one above the watched dir)")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(root string, stop <-chan struct{}) error {
	log := newLogger()
	defer log.Sync()

	projectPath := watchSchema
	if projectPath == "" {
		found, ok := rules.FindProjectConfig(root)
		if !ok {
			return fmt.Errorf("no %s found above %s", rules.ProjectConfigName, root)
		}
		projectPath = found
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watch init failed: %w", err)
	}
	defer watcher.Close()

	if err := addWatchRecursive(watcher, root); err != nil {
		return fmt.Errorf("watch failed: %w", err)
	}

	eng := newEngine(log, nil)

	var mu sync.Mutex
	pending := map[string]bool{}
	var timer *time.Timer

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = map[string]bool{}
		mu.Unlock()

		for _, p := range paths {
			scanWatched(eng, p, projectPath)
		}
	}

	fmt.Fprintf(os.Stderr, "Watching %s\n", root)
	for {
		select {
		case <-stop:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					_ = addWatchRecursive(watcher, ev.Name)
					continue
				}
			}
			if !strings.HasSuffix(ev.Name, ".py") {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			mu.Lock()
			pending[ev.Name] = true
			mu.Unlock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, flush)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warnw("watch error", "error", err)
		}
	}
}

func scanWatched(eng *engine.Engine, path, projectPath string) {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "  cannot read %s: %v\n", path, err)
		return
	}
	result, err := eng.Scan(context.Background(), source, path, projectPath, engine.ScanOptions{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "  %v\n", err)
		return
	}
	if out := engine.FormatText(result, path); out != "" {
		fmt.Fprint(os.Stderr, out)
	} else {
		fmt.Fprintf(os.Stderr, "%s: passed\n", path)
	}
}

func addWatchRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}
