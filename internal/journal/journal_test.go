package journal_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/tapometer/internal/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func testEntry() *journal.Entry {
	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	return &journal.Entry{
		ID:         "2b1e9e04-3a7e-4c43-9f0e-8f6a2f3f9d11",
		Address:    "192.168.1.42",
		Interval:   time.Second,
		Duration:   5 * time.Second,
		State:      "completed",
		Samples:    5,
		OutputPath: "/tmp/results/run.csv",
		StartedAt:  started,
		FinishedAt: started.Add(5 * time.Second),
	}
}

func TestRecordAndReadBack(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	recorder, err := journal.NewService(journal.Config{DBPath: dbPath, Enabled: true})
	require.NoError(t, err)

	require.NoError(t, recorder.Record(context.Background(), testEntry()))
	require.NoError(t, recorder.Close())

	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	var (
		count      int
		state      string
		samples    int
		intervalMS int64
	)
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Equal(t, 1, count)

	row := db.QueryRow("SELECT state, samples, interval_ms FROM sessions")
	require.NoError(t, row.Scan(&state, &samples, &intervalMS))
	assert.Equal(t, "completed", state)
	assert.Equal(t, 5, samples)
	assert.Equal(t, int64(1000), intervalMS)
}

func TestDisabledJournalIsNoop(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	recorder, err := journal.NewService(journal.Config{DBPath: dbPath, Enabled: false})
	require.NoError(t, err)

	require.NoError(t, recorder.Record(context.Background(), testEntry()))
	require.NoError(t, recorder.Close())

	_, err = os.Stat(dbPath)
	assert.True(t, os.IsNotExist(err), "disabled journal must not create a database")
}

func TestRecordNilEntry(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "journal.db")

	recorder, err := journal.NewService(journal.Config{DBPath: dbPath, Enabled: true})
	require.NoError(t, err)
	defer recorder.Close()

	require.Error(t, recorder.Record(context.Background(), nil))
}

func TestEnabledJournalRequiresPath(t *testing.T) {
	_, err := journal.NewService(journal.Config{Enabled: true})
	require.Error(t, err)
}
