package repository

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/link-broker-go/internal/database"
	"github.com/openclaw/link-broker-go/internal/model"
)

func setupTestDB(t *testing.T) *database.DB {
	t.Helper()

	databaseURL := os.Getenv("TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := database.Connect(databaseURL)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	require.NoError(t, db.Migrate(ctx))
	_, err = db.ExecContext(ctx, "DELETE FROM link_events")
	require.NoError(t, err)
	return db
}

func TestLinkEventRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewLinkEventRepository(db.DB)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour).Truncate(time.Millisecond)

	t.Run("creates and lists newest first", func(t *testing.T) {
		require.NoError(t, repo.Create(ctx, model.CreateLinkEventParams{
			SessionID: "acct-1",
			Type:      model.LinkEventCreated,
			ConnID:    "conn-a",
			Details:   map[string]any{"flow": "pairing"},
			CreatedAt: base,
		}))
		require.NoError(t, repo.Create(ctx, model.CreateLinkEventParams{
			SessionID: "acct-1",
			Type:      model.LinkEventLinked,
			CreatedAt: base.Add(time.Minute),
		}))

		events, err := repo.ListBySession(ctx, "acct-1", 0)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, model.LinkEventLinked, events[0].Type)
		assert.Nil(t, events[0].ConnID)
		assert.Equal(t, model.LinkEventCreated, events[1].Type)
		require.NotNil(t, events[1].ConnID)
		assert.Equal(t, "conn-a", *events[1].ConnID)
		require.NotNil(t, events[1].Details)
		assert.JSONEq(t, `{"flow":"pairing"}`, string(*events[1].Details))
	})

	t.Run("latest returns nil for unknown session", func(t *testing.T) {
		event, err := repo.LatestBySession(ctx, "unknown")
		require.NoError(t, err)
		assert.Nil(t, event)

		event, err = repo.LatestBySession(ctx, "acct-1")
		require.NoError(t, err)
		require.NotNil(t, event)
		assert.Equal(t, model.LinkEventLinked, event.Type)
	})

	t.Run("deletes events older than cutoff", func(t *testing.T) {
		count, err := repo.DeleteOlderThan(ctx, base.Add(30*time.Second))
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		events, err := repo.ListBySession(ctx, "acct-1", 10)
		require.NoError(t, err)
		assert.Len(t, events, 1)
	})
}

func TestHandleNotFound(t *testing.T) {
	value := 42

	t.Run("no rows becomes nil without error", func(t *testing.T) {
		got, err := HandleNotFound(&value, sql.ErrNoRows)
		assert.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("other errors pass through", func(t *testing.T) {
		boom := errors.New("boom")
		got, err := HandleNotFound(&value, boom)
		assert.ErrorIs(t, err, boom)
		assert.Nil(t, got)
	})

	t.Run("success returns the result", func(t *testing.T) {
		got, err := HandleNotFound(&value, nil)
		assert.NoError(t, err)
		assert.Equal(t, &value, got)
	})
}
