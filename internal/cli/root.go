// Package cli implements the pygate command tree.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pygate/pygate/internal/dedupe"
	"github.com/pygate/pygate/internal/engine"
	"github.com/pygate/pygate/internal/logging"
	"github.com/pygate/pygate/internal/rules"
	"github.com/pygate/pygate/internal/telemetry"
)

var (
	debugMode bool
	homeDir   string
)

var rootCmd = &cobra.Command{
	Use:           "pygate",
	Short:         "Schema enforcement for Python source files",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the command tree. Internal errors exit 1; the scan command
// exits 2 itself when a file is blocked.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "",
		"rule store directory (default $PYGATE_HOME or ~/.config/pygate)")
}

func newLogger() *zap.SugaredLogger {
	return logging.New(debugMode)
}

// openStore resolves the rule store. A missing store is not an error: the
// engine treats it as enforcement not installed and passes every file.
func openStore(log *zap.SugaredLogger) rules.Store {
	dir := homeDir
	if dir == "" {
		found, ok := rules.FindHome()
		if !ok {
			log.Debugw("no rule store found")
			return nil
		}
		dir = found
	}
	store, err := rules.NewDirStore(dir)
	if err != nil {
		log.Warnw("cannot open rule store", "dir", dir, "error", err)
		return nil
	}
	return store
}

func newEngine(log *zap.SugaredLogger, ded dedupe.Store) *engine.Engine {
	return engine.New(openStore(log), engine.Options{
		Log:      log,
		Recorder: telemetry.New(),
		Dedupe:   ded,
	})
}

// EnvScanSet names a shared dedupe file. A parent process that spawns nested
// pygate invocations sets it so the same file is not scanned twice across
// the process tree.
const EnvScanSet = "PYGATE_SCAN_SET"

func scanDedupe() dedupe.Store {
	if path := os.Getenv(EnvScanSet); path != "" {
		return dedupe.NewFile(path)
	}
	return nil
}
