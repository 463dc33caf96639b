package bars

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
	"github.com/CyberForge275/traderunner-sub002/internal/fsio"
)

func barAt(ts time.Time, close float64) domain.Bar {
	return domain.Bar{Ts: ts, Open: close - 0.5, High: close + 1, Low: close - 1, Close: close, Volume: 100}
}

func TestLoadSnapshot_CSVSortsAndHashes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars_exec_M5_rth.csv")
	payload := "timestamp,open,high,low,close,volume\n" +
		"2025-12-15T14:40:00Z,100,102,99,101,10\n" +
		"2025-12-15T14:30:00Z,99,101,98,100,20\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	frame, hash, err := LoadSnapshot(path)
	require.NoError(t, err)
	require.Equal(t, 2, frame.Len())
	assert.True(t, frame.Bars[0].Ts.Before(frame.Bars[1].Ts), "loader must sort ascending")
	assert.Equal(t, fsio.SHA256Bytes([]byte(payload)), hash)
}

func TestLoadSnapshot_ParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars_exec_M5_rth.parquet")
	rows := []domain.Bar{
		barAt(time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC), 100),
		barAt(time.Date(2025, 12, 15, 14, 35, 0, 0, time.UTC), 101),
	}
	require.NoError(t, WriteParquet(path, rows))

	frame, hash, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, rows, frame.Bars)
	assert.Len(t, hash, 64)

	// Re-hashing yields the identical digest.
	again, err := fsio.SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, hash, again)
}

func TestLoadSnapshot_DuplicateTimestampsSurvive(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dupes.csv")
	payload := "timestamp,open,high,low,close,volume\n" +
		"2025-12-15T14:30:00Z,1,2,0.5,1.5,10\n" +
		"2025-12-15T14:30:00Z,1,2,0.5,1.5,10\n"
	require.NoError(t, os.WriteFile(path, []byte(payload), 0o644))

	frame, _, err := LoadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, 2, frame.Len(), "duplicates are the SLA gate's business, not the loader's")
}

func TestLoadSnapshot_UnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.feather")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, _, err := LoadSnapshot(path)
	var snapErr *domain.SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.Contains(t, snapErr.Reason, "unsupported extension")
}

func TestLoadSnapshot_MissingFile(t *testing.T) {
	_, _, err := LoadSnapshot(filepath.Join(t.TempDir(), "absent.csv"))
	var snapErr *domain.SnapshotError
	require.ErrorAs(t, err, &snapErr)
}

func TestReadParquetMeta_Bounds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "AAPL.parquet")
	first := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)
	last := time.Date(2025, 12, 15, 20, 55, 0, 0, time.UTC)
	require.NoError(t, WriteParquet(path, []domain.Bar{barAt(first, 100), barAt(last, 101)}))

	meta, err := ReadParquetMeta(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), meta.Rows)
	require.True(t, meta.HasTs)
	assert.True(t, meta.FirstTs.Equal(first))
	assert.True(t, meta.LastTs.Equal(last))
}
