package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/tradedocs-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "trace.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func testSnapshot() Snapshot {
	end := time.Date(2026, 8, 1, 12, 0, 5, 0, time.UTC)
	return Snapshot{
		LastState: &model.ExtractionSession{
			ID:          "sess-1",
			StartedAt:   time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC),
			EndedAt:     &end,
			Status:      model.StatusFailure,
			CurrentStep: model.StepError,
			Events: []model.TraceEvent{
				{ID: "e1", Step: model.StepInit, Message: "session started"},
			},
		},
		PartialData: &model.PartialExtractionData{
			Metadata: &model.InvoiceRecord{InvoiceNumber: "INV-77"},
			SavedAt:  time.Date(2026, 8, 1, 12, 0, 4, 0, time.UTC),
		},
	}
}

func TestSQLiteStore_SaveLoadRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot()))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-1", got.LastState.ID)
	assert.Equal(t, model.StatusFailure, got.LastState.Status)
	require.NotNil(t, got.PartialData)
	assert.Equal(t, "INV-77", got.PartialData.Metadata.InvoiceNumber)
}

func TestSQLiteStore_SaveOverwrites(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot()))

	second := testSnapshot()
	second.LastState.ID = "sess-2"
	second.PartialData = nil
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sess-2", got.LastState.ID)
	assert.Nil(t, got.PartialData)
}

func TestSQLiteStore_LoadEmpty(t *testing.T) {
	s := newTestSQLite(t)

	got, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStore_Clear(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, testSnapshot()))
	require.NoError(t, s.Clear(ctx))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryStore_RoundTrip(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, m.Save(ctx, testSnapshot()))
	got, err = m.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "sess-1", got.LastState.ID)

	require.NoError(t, m.Clear(ctx))
	got, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, got)
}
