package session_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tapometer/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)

	return rows
}

func TestSinkWriteCSV(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	sink := session.NewSink()
	sink.Append(session.Sample{Timestamp: base, Power: 4200})
	sink.Append(session.Sample{Timestamp: base.Add(time.Second), Power: 4300})

	require.NoError(t, sink.WriteCSV(path))

	rows := readCSV(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"timestamp", "power"}, rows[0])
	assert.Equal(t, "4200", rows[1][1])
	assert.Equal(t, "4300", rows[2][1])
	assert.Less(t, rows[1][0], rows[2][0], "timestamps must sort in capture order")
}

func TestSinkWriteCSVHeaderOnly(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.csv")

	require.NoError(t, session.NewSink().WriteCSV(path))

	rows := readCSV(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, []string{"timestamp", "power"}, rows[0])
}

func TestSinkWriteCSVLeavesNothingOnFailure(t *testing.T) {
	// Writing into a directory that does not exist must fail without
	// leaving any file behind.
	dir := filepath.Join(t.TempDir(), "missing")
	path := filepath.Join(dir, "out.csv")

	sink := session.NewSink()
	sink.Append(session.Sample{Timestamp: time.Now(), Power: 100})

	require.Error(t, sink.WriteCSV(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestResolveOutputPathCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "results")

	path, err := session.ResolveOutputPath(dir, "run")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run.csv"), path)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestResolveOutputPathCollision(t *testing.T) {
	dir := t.TempDir()

	first, err := session.ResolveOutputPath(dir, "run")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(first, []byte("x"), 0o600))

	second, err := session.ResolveOutputPath(dir, "run")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run_1.csv"), second)
	require.NoError(t, os.WriteFile(second, []byte("x"), 0o600))

	third, err := session.ResolveOutputPath(dir, "run")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "run_2.csv"), third)
}
