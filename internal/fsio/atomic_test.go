package fsio

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_CreatesParentsAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "deeper", "artifact.csv")

	require.NoError(t, WriteFileAtomic(path, []byte("a,b\n1,2\n")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(data))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must not survive a successful write")
}

func TestWriteJSONAtomic_IndentedWithTrailingNewline(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "result.json")

	require.NoError(t, WriteJSONAtomic(path, map[string]any{"status": "SUCCESS", "run_id": "r1"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(data), "\n"))

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "SUCCESS", got["status"])
}

func TestAppendJSONLine_AppendsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "run_steps.jsonl")

	for i := 0; i < 3; i++ {
		require.NoError(t, AppendJSONLine(path, map[string]int{"step_index": i}))
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)
	for i, line := range lines {
		var got map[string]int
		require.NoError(t, json.Unmarshal([]byte(line), &got))
		assert.Equal(t, i, got["step_index"])
	}
}

func TestSHA256_FileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	payload := []byte("timestamp,open,high,low,close,volume\n")
	require.NoError(t, WriteFileAtomic(path, payload))

	fileHash, err := SHA256File(path)
	require.NoError(t, err)
	assert.Equal(t, SHA256Bytes(payload), fileHash)
	assert.Len(t, fileHash, 64)
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.parquet")
	dst := filepath.Join(dir, "bars", "dst.parquet")
	require.NoError(t, os.WriteFile(src, []byte{0x50, 0x41, 0x52, 0x31}, 0o644))

	require.NoError(t, CopyFileAtomic(src, dst))

	srcHash, err := SHA256File(src)
	require.NoError(t, err)
	dstHash, err := SHA256File(dst)
	require.NoError(t, err)
	assert.Equal(t, srcHash, dstHash)
}
