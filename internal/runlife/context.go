// Package runlife owns the run lifecycle: the run directory, the artifact
// set, the step event stream, and the pipeline orchestration that ties
// every stage together under the fail-safe artifact guarantees.
package runlife

import (
	"fmt"
	"os"
	"path/filepath"
)

// Artifact file names under the run directory.
const (
	FileRunMeta      = "run_meta.json"
	FileRunManifest  = "run_manifest.json"
	FileRunResult    = "run_result.json"
	FileStacktrace   = "error_stacktrace.txt"
	FileEventsIntent = "events_intent.csv"
	FileFills        = "fills.csv"
	FileTrades       = "trades.csv"
	FileEquityCurve  = "equity_curve.csv"
	FileLedger       = "portfolio_ledger.csv"
	FileMetrics      = "metrics.json"
	FileCoverage     = "coverage_check.json"
	FileSLA          = "sla_check.json"
	FileHistory      = "history_check.json"
	FileEvidence     = "trade_evidence.csv"
	FileSteps        = "run_steps.jsonl"
	DirBars          = "bars"
)

// RunContext is the single source of truth for all filesystem I/O within
// a run. After construction no code may rebuild paths from the run id.
type RunContext struct {
	RunID   string
	RunName string
	RunDir  string
}

// NewRunContext creates the run directory. The parent chain is created as
// needed but the leaf must not pre-exist: the directory is exclusively
// owned by this run.
func NewRunContext(artifactsRoot, runID, runName string) (*RunContext, error) {
	if runID == "" {
		return nil, fmt.Errorf("run id must not be empty")
	}
	runDir, err := filepath.Abs(filepath.Join(artifactsRoot, "backtests", runID))
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(runDir), 0o755); err != nil {
		return nil, err
	}
	if err := os.Mkdir(runDir, 0o755); err != nil {
		if os.IsExist(err) {
			return nil, fmt.Errorf("run directory %s already exists, refusing to reuse it", runDir)
		}
		return nil, err
	}
	return &RunContext{RunID: runID, RunName: runName, RunDir: runDir}, nil
}

// Path resolves an artifact file name inside the run directory.
func (c *RunContext) Path(name string) string { return filepath.Join(c.RunDir, name) }

// BarsDir resolves the snapshot subdirectory.
func (c *RunContext) BarsDir() string { return filepath.Join(c.RunDir, DirBars) }
