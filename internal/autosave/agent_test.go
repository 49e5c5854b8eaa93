package autosave

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/models"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/storage"
	"github.com/thepurplechild/manthan-creator-suite-v0.1/internal/utils"
)

type blockingSaver struct {
	mu      sync.Mutex
	release chan struct{}
	saved   []models.AutosaveRecord
	err     error
}

func (b *blockingSaver) SaveAutosave(ctx context.Context, rec models.AutosaveRecord) error {
	if b.release != nil {
		<-b.release
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, rec)
	return b.err
}

func quietLogger() *utils.Logger {
	return utils.NewLogger(io.Discard, utils.DEBUG)
}

func TestRecordWritesThroughStore(t *testing.T) {
	store := storage.NewMemoryStore()
	a := New(store, Options{Enabled: true}, quietLogger())

	q := models.QualityRecord{Label: models.QualityStrong, Score: 90, Suggestions: []string{}}
	docID := a.Record("p1", "alice", models.StageOutline, "first", q)
	a.Record("p1", "alice", models.StageOutline, "second", q)
	require.NoError(t, a.Close(context.Background()))

	assert.Equal(t, "autosave-p1-outline", docID)
	rec, err := store.GetAutosave(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, "second", rec.Text)
	assert.Equal(t, "outline", rec.Stage)
	assert.Equal(t, 90, rec.Quality.Score)
}

func TestRecordNeverBlocksWhenQueueFull(t *testing.T) {
	saver := &blockingSaver{release: make(chan struct{})}
	a := New(saver, Options{Enabled: true, QueueSize: 1}, quietLogger())

	start := time.Now()
	for i := 0; i < 20; i++ {
		a.Record("p1", "", models.StageScenes, "text", models.QualityRecord{})
	}
	assert.Less(t, time.Since(start), time.Second)

	close(saver.release)
	require.NoError(t, a.Close(context.Background()))
	saver.mu.Lock()
	defer saver.mu.Unlock()
	assert.LessOrEqual(t, len(saver.saved), 2)
	assert.NotEmpty(t, saver.saved)
}

func TestFailuresAreSwallowed(t *testing.T) {
	saver := &blockingSaver{err: errors.New("disk full")}
	a := New(saver, Options{Enabled: true}, quietLogger())
	a.Record("p1", "", models.StageOutline, "text", models.QualityRecord{})
	require.NoError(t, a.Close(context.Background()))
	assert.Len(t, saver.saved, 1)
}

func TestDisabledIsNoop(t *testing.T) {
	saver := &blockingSaver{}
	a := New(saver, Options{Enabled: false}, quietLogger())
	a.Record("p1", "", models.StageOutline, "text", models.QualityRecord{})
	a.RecordPitch("pitch-x", "", &models.PitchPack{Synopsis: "s"})
	require.NoError(t, a.Close(context.Background()))
	assert.Empty(t, saver.saved)
	assert.False(t, a.Enabled())
}

func TestRecordAfterCloseIsDropped(t *testing.T) {
	saver := &blockingSaver{}
	a := New(saver, Options{Enabled: true}, quietLogger())
	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
	a.Record("p1", "", models.StageOutline, "late", models.QualityRecord{})
	assert.Empty(t, saver.saved)
}

func TestRecordPitch(t *testing.T) {
	store := storage.NewMemoryStore()
	a := New(store, Options{Enabled: true}, quietLogger())
	docID := PitchDocumentID("alice", "Dhundh", "A cop hunts a killer in fog.")
	a.RecordPitch(docID, "alice", &models.PitchPack{
		Title:    "Dhundh",
		Synopsis: "Fog.",
		Quality:  &models.QualityRecord{Label: models.QualityDecent, Score: 70},
	})
	require.NoError(t, a.Close(context.Background()))

	rec, err := store.GetAutosave(context.Background(), docID)
	require.NoError(t, err)
	assert.Equal(t, PitchStage, rec.Stage)
	require.NotNil(t, rec.Pitch)
	assert.Equal(t, "Dhundh", rec.Pitch.Title)
	assert.Equal(t, 70, rec.Quality.Score)
}

func TestDocumentIDs(t *testing.T) {
	assert.Equal(t, "autosave-p9-dialogue", DocumentID("p9", models.StageDialogue))
	a := PitchDocumentID("alice", "Dhundh", "Fog kills")
	assert.Equal(t, a, PitchDocumentID("alice", " dhundh ", "fog kills"))
	assert.NotEqual(t, a, PitchDocumentID("bob", "Dhundh", "Fog kills"))
	assert.Contains(t, PitchDocumentID("", "x", "y"), "pitch-anon-")
}
