package bars

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CyberForge275/traderunner-sub002/internal/domain"
)

func TestReadCSV_CaseInsensitiveHeadersAndExtras(t *testing.T) {
	in := strings.Join([]string{
		"Timestamp,OPEN,High,low,Close,Volume,vendor_flag",
		"2025-12-15T14:30:00Z,100,101,99.5,100.5,1200,x",
		"2025-12-15 14:35:00,100.5,102,100,101.5,900,y",
	}, "\n")

	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC), rows[0].Ts)
	assert.Equal(t, 100.0, rows[0].Open)
	assert.Equal(t, int64(1200), rows[0].Volume)
	// Offset-less timestamps are interpreted as UTC.
	assert.Equal(t, time.Date(2025, 12, 15, 14, 35, 0, 0, time.UTC), rows[1].Ts)
}

func TestReadCSV_MissingColumn(t *testing.T) {
	in := "timestamp,open,high,low,close\n2025-12-15T14:30:00Z,1,1,1,1\n"
	_, err := ReadCSV(strings.NewReader(in))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `missing column "volume"`)
}

func TestReadCSV_FloatVolume(t *testing.T) {
	in := "timestamp,open,high,low,close,volume\n2025-12-15T14:30:00Z,1,2,0.5,1.5,150.0\n"
	rows, err := ReadCSV(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, int64(150), rows[0].Volume)
}

func TestParseTimestamp_Formats(t *testing.T) {
	want := time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC)
	for _, s := range []string{
		"2025-12-15T14:30:00Z",
		"2025-12-15T09:30:00-05:00",
		"2025-12-15 14:30:00",
		"2025-12-15T14:30:00",
	} {
		got, err := ParseTimestamp(s)
		require.NoError(t, err, s)
		assert.True(t, got.Equal(want), s)
	}

	dateOnly, err := ParseTimestamp("2025-12-15")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 12, 15, 0, 0, 0, 0, time.UTC), dateOnly)

	_, err = ParseTimestamp("noon-ish")
	assert.Error(t, err)
}

func TestWriteCSV_CanonicalRender(t *testing.T) {
	rows := []domain.Bar{
		{Ts: time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC), Open: 100, High: 101.25, Low: 99.5, Close: 100.5, Volume: 1200},
	}
	var b strings.Builder
	require.NoError(t, WriteCSV(&b, rows))

	lines := strings.Split(strings.TrimSpace(b.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "timestamp,open,high,low,close,volume", lines[0])
	assert.Equal(t, "2025-12-15T14:30:00Z,100,101.25,99.5,100.5,1200", lines[1])
}

func TestCSV_RoundTrip(t *testing.T) {
	rows := []domain.Bar{
		{Ts: time.Date(2025, 12, 15, 14, 30, 0, 0, time.UTC), Open: 100, High: 101, Low: 99, Close: 100.5, Volume: 10},
		{Ts: time.Date(2025, 12, 15, 14, 35, 0, 0, time.UTC), Open: 100.5, High: 102, Low: 100, Close: 101, Volume: 20},
	}
	var b strings.Builder
	require.NoError(t, WriteCSV(&b, rows))

	got, err := ReadCSV(strings.NewReader(b.String()))
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
