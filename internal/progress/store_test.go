package progress

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"holocron/internal/model"
)

func seedItems() []model.WorkItem {
	return []model.WorkItem{
		{URL: "https://starwars.fandom.com/wiki/Luke_Skywalker", ID: "1", Priority: model.PriorityHigh},
		{URL: "https://starwars.fandom.com/wiki/Tatooine", ID: "2", Priority: model.PriorityLow},
	}
}

func TestOpenSeedsFreshStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")

	s, err := Open(path, seedItems())
	require.NoError(t, err)

	total, processed := s.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 0, processed)
}

func TestOpenReloadsExistingStatusFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")

	s, err := Open(path, seedItems())
	require.NoError(t, err)
	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/Tatooine"}))

	reopened, err := Open(path, nil)
	require.NoError(t, err)

	total, processed := reopened.Counts()
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, processed)
}

func TestUnprocessedFiltersByPriorityAndLimit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, seedItems())
	require.NoError(t, err)

	high := s.Unprocessed(model.PriorityHigh, 0)
	require.Len(t, high, 1)
	assert.Equal(t, "https://starwars.fandom.com/wiki/Luke_Skywalker", high[0].URL)

	all := s.Unprocessed("", 1)
	assert.Len(t, all, 1)
}

func TestMarkProcessedPersistsAcrossReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, seedItems())
	require.NoError(t, err)

	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/Luke_Skywalker"}))

	unprocessed := s.Unprocessed("", 0)
	require.Len(t, unprocessed, 1)
	assert.Equal(t, "https://starwars.fandom.com/wiki/Tatooine", unprocessed[0].URL)
}

func TestMarkFailedRecordsAttemptAndError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, seedItems())
	require.NoError(t, err)

	attempts, err := s.MarkFailed("https://starwars.fandom.com/wiki/Tatooine", errors.New("fetch timed out"))
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	unprocessed := reopened.Unprocessed("", 0)
	require.Len(t, unprocessed, 2)
}

func TestTrackRegistersNewURLAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, nil)
	require.NoError(t, err)

	url := "https://starwars.fandom.com/wiki/Ahsoka_Tano"
	s.Track(model.WorkItem{URL: url})
	s.Track(model.WorkItem{URL: url, Priority: model.PriorityHigh})

	total, _ := s.Counts()
	assert.Equal(t, 1, total)
	require.NoError(t, s.MarkProcessed([]string{url}))

	_, processed := s.Counts()
	assert.Equal(t, 1, processed)
}

func TestCheckpointBatchSizeDefersDiskWritesUntilThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	seed := []model.WorkItem{
		{URL: "https://starwars.fandom.com/wiki/A"},
		{URL: "https://starwars.fandom.com/wiki/B"},
		{URL: "https://starwars.fandom.com/wiki/C"},
	}
	s, err := Open(path, seed)
	require.NoError(t, err)
	s.SetCheckpointBatchSize(3)

	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/A"}))
	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/B"}))

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	_, processed := reopened.Counts()
	assert.Equal(t, 0, processed, "batch not yet full, nothing should have reached disk")

	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/C"}))

	reopened, err = Open(path, nil)
	require.NoError(t, err)
	_, processed = reopened.Counts()
	assert.Equal(t, 3, processed, "threshold reached, batch should have flushed")
}

func TestCheckpointForcesImmediateFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, seedItems())
	require.NoError(t, err)
	s.SetCheckpointBatchSize(10)

	require.NoError(t, s.MarkProcessed([]string{"https://starwars.fandom.com/wiki/Luke_Skywalker"}))
	require.NoError(t, s.Checkpoint())

	reopened, err := Open(path, nil)
	require.NoError(t, err)
	_, processed := reopened.Counts()
	assert.Equal(t, 1, processed)
}

func TestMarkFailedUnknownURLIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.csv")
	s, err := Open(path, seedItems())
	require.NoError(t, err)

	attempts, err := s.MarkFailed("https://starwars.fandom.com/wiki/Unknown", errors.New("nope"))
	assert.NoError(t, err)
	assert.Equal(t, 0, attempts)
}
