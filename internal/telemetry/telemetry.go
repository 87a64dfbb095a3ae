// Package telemetry appends one JSONL record per scan to a log file. The
// record carries enough to answer "what was scanned, under which schema,
// with what outcome, how fast" without storing the source itself; content
// is identified by a truncated hash.
package telemetry

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pygate/pygate/internal/config"
	"github.com/pygate/pygate/internal/engine"
)

// LogFileName is the file appended to inside the configured directory.
const LogFileName = "scan_log.jsonl"

type entry struct {
	Timestamp       string                    `json:"timestamp"`
	Event           string                    `json:"event"`
	File            string                    `json:"file"`
	Schema          string                    `json:"schema"`
	SchemaVersion   string                    `json:"schema_version"`
	Status          string                    `json:"status"`
	Violations      []engine.ViolationSummary `json:"violations"`
	PassedRules     []string                  `json:"passed_rules"`
	TotalRules      int                       `json:"total_rules"`
	CodeLengthLines int                       `json:"code_length_lines"`
	CodeHash        string                    `json:"code_hash"`
	ScanMS          int64                     `json:"scan_ms"`
}

// Writer implements engine.Recorder by appending JSONL entries.
type Writer struct{}

// New returns a JSONL recorder.
func New() *Writer {
	return &Writer{}
}

// Record implements engine.Recorder. The directory is created if missing.
func (w *Writer) Record(dir string, rec *engine.ScanRecord) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	e := entry{
		Timestamp:       time.Now().UTC().Format("2006-01-02T15:04:05.000000Z"),
		Event:           "scan",
		File:            rec.File,
		Schema:          rec.Schema,
		SchemaVersion:   rec.SchemaVersion,
		Status:          rec.Status,
		Violations:      rec.Violations,
		PassedRules:     rec.PassedRules,
		TotalRules:      rec.TotalRules,
		CodeLengthLines: countLines(rec.Source),
		CodeHash:        contentHash(rec.Source),
		ScanMS:          rec.ScanMS,
	}
	if e.Violations == nil {
		e.Violations = []engine.ViolationSummary{}
	}
	if e.PassedRules == nil {
		e.PassedRules = []string{}
	}

	data, err := json.Marshal(e)
	if err != nil {
		return err
	}

	fh, err := os.OpenFile(filepath.Join(dir, LogFileName),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer fh.Close()
	_, err = fh.Write(append(data, '\n'))
	return err
}

func contentHash(source []byte) string {
	sum := sha256.Sum256(source)
	hexed := hex.EncodeToString(sum[:])
	n := config.Get().HashTruncation
	if n > len(hexed) {
		n = len(hexed)
	}
	return "sha256:" + hexed[:n]
}

// countLines matches the line-splitting used for source analysis: a trailing
// newline does not produce an extra empty line.
func countLines(source []byte) int {
	if len(source) == 0 {
		return 0
	}
	n := bytes.Count(source, []byte("\n"))
	if !bytes.HasSuffix(source, []byte("\n")) {
		n++
	}
	return n
}
