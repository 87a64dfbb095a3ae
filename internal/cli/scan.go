package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pygate/pygate/internal/analyzer"
	"github.com/pygate/pygate/internal/engine"
	"github.com/pygate/pygate/internal/rules"
)

// Exit codes. A blocked file is distinguishable from an internal failure so
// callers can tell "policy said no" from "the tool broke".
const (
	exitOK      = 0
	exitError   = 1
	exitBlocked = 2
)

const stdinFilename = "<stdin>"

var (
	scanStdin    bool
	scanFilename string
	scanSchema   string
	scanFormat   string
	scanNoScope  bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [file]",
	Short: "Scan a Python file against its schema",
	Long: `Scan a Python file against the schema selected by the project's
.gate_schema.yaml. Exits 0 when the file passes, 2 when blocking violations
are found, and 1 on internal errors such as unparseable source.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(runScan(args))
	},
}

func init() {
	scanCmd.Flags().BoolVar(&scanStdin, "stdin", false, "read source from stdin")
	scanCmd.Flags().StringVar(&scanFilename, "filename", "",
		"filename to report when reading from stdin")
	scanCmd.Flags().StringVar(&scanSchema, "schema", "",
		"path to .gate_schema.yaml (default: nearest one above the file)")
	scanCmd.Flags().StringVar(&scanFormat, "format", "text", "output format (text, json)")
	scanCmd.Flags().BoolVar(&scanNoScope, "no-scope", false, "skip gated-path scope checking")
	rootCmd.AddCommand(scanCmd)
}

func runScan(args []string) int {
	log := newLogger()
	defer log.Sync()

	source, path, err := readSource(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitError
	}

	projectPath := scanSchema
	if projectPath == "" {
		found, ok := rules.FindProjectConfig(filepath.Dir(path))
		if !ok {
			// No project config anywhere above: enforcement is not set up
			// for this tree.
			return exitOK
		}
		projectPath = found
	}

	eng := newEngine(log, scanDedupe())
	result, err := eng.Scan(context.Background(), source, path, projectPath,
		engine.ScanOptions{SkipScope: scanNoScope})
	if err != nil {
		var parseErr *analyzer.ParseError
		if errors.As(err, &parseErr) {
			fmt.Fprintf(os.Stderr, "  %v\n", parseErr)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return exitError
	}

	if scanFormat == "json" {
		data, err := engine.FormatJSON(result, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitError
		}
		fmt.Println(string(data))
	} else if out := engine.FormatText(result, path); out != "" {
		fmt.Fprint(os.Stderr, out)
	}

	if result.BlockingCount > 0 {
		return exitBlocked
	}
	return exitOK
}

// readSource loads the source text from the positional file argument or
// stdin.
func readSource(args []string) ([]byte, string, error) {
	if scanStdin {
		source, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, "", fmt.Errorf("cannot read stdin: %w", err)
		}
		path := scanFilename
		if path == "" {
			path = stdinFilename
		}
		return source, path, nil
	}
	if len(args) == 0 {
		return nil, "", errors.New("either a file argument or --stdin is required")
	}
	path := args[0]
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return source, path, nil
}
