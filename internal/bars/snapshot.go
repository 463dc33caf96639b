package bars

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

// LoadSnapshot reads a bars snapshot (CSV or parquet, by extension) into a
// frame sorted ascending by timestamp and returns the file's SHA-256.
// Duplicate timestamps survive the load deliberately: data-quality gates
// must get to see them.
func LoadSnapshot(path string) (*domain.BarFrame, string, error) {
	var (
		rows []domain.Bar
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, "", &domain.SnapshotError{Path: path, Reason: openErr.Error()}
		}
		rows, err = ReadCSV(f)
		f.Close()
	case ".parquet":
		rows, err = ReadParquet(path)
	default:
		return nil, "", &domain.SnapshotError{Path: path, Reason: fmt.Sprintf("unsupported extension %q (want .csv or .parquet)", ext)}
	}
	if err != nil {
		return nil, "", &domain.SnapshotError{Path: path, Reason: err.Error()}
	}

	frame := &domain.BarFrame{Bars: rows}
	frame.SortAscending()

	hash, err := fsio.SHA256File(path)
	if err != nil {
		return nil, "", &domain.SnapshotError{Path: path, Reason: fmt.Sprintf("hash: %v", err)}
	}
	return frame, hash, nil
}
