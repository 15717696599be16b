package repository

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclaw/link-broker-go/internal/model"
)

func TestSessionStore_Create(t *testing.T) {
	t.Run("generates unique IDs", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())

		a, replaced := store.Create(model.CreateSessionParams{Owner: "c1", Flow: model.LinkFlowQRCode})
		require.Nil(t, replaced)
		b, _ := store.Create(model.CreateSessionParams{Owner: "c1", Flow: model.LinkFlowQRCode})

		assert.NotEqual(t, a.ID, b.ID)
		assert.Equal(t, 2, store.Len())
		assert.Equal(t, "c1", store.Get(a.ID).Owner)
		assert.False(t, store.Get(a.ID).Linked)
	})

	t.Run("custom ID overwrites existing record", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())

		first, _ := store.Create(model.CreateSessionParams{ID: "S1", Owner: "c1"})
		store.SetAttempt("S1", 7)
		store.SetHandle("S1", 7, "h1")

		second, replaced := store.Create(model.CreateSessionParams{ID: "S1", Owner: "c2"})

		require.NotNil(t, replaced)
		assert.Same(t, first, replaced)
		assert.Equal(t, "h1", replaced.Handle)
		assert.Equal(t, "c2", store.Get("S1").Owner)
		assert.Empty(t, second.Handle)
		assert.Equal(t, 1, store.Len())
	})

	t.Run("stamps creation time from clock", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		store := NewSessionStore(clock)

		s, _ := store.Create(model.CreateSessionParams{})
		assert.Equal(t, clock.Now(), s.CreatedAt)
	})
}

func TestSessionStore_Mutations(t *testing.T) {
	t.Run("MarkLinked is idempotent and ignores absent sessions", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())
		store.Create(model.CreateSessionParams{ID: "S1"})

		assert.True(t, store.MarkLinked("S1"))
		assert.False(t, store.MarkLinked("S1"))
		assert.False(t, store.MarkLinked("missing"))
		assert.True(t, store.Get("S1").Linked)
	})

	t.Run("SetOwner attaches and detaches", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())
		store.Create(model.CreateSessionParams{ID: "S1", Owner: "c1"})

		assert.True(t, store.SetOwner("S1", ""))
		assert.Empty(t, store.Get("S1").Owner)
		assert.True(t, store.SetOwner("S1", "c2"))
		assert.Equal(t, "c2", store.Get("S1").Owner)
		assert.False(t, store.SetOwner("missing", "c2"))
	})

	t.Run("SetHandle ignores stale attempts", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())
		store.Create(model.CreateSessionParams{ID: "S1"})
		store.SetAttempt("S1", 2)

		assert.False(t, store.SetHandle("S1", 1, "old"))
		assert.Empty(t, store.Get("S1").Handle)
		assert.True(t, store.SetHandle("S1", 2, "new"))
		assert.Equal(t, "new", store.Get("S1").Handle)
	})

	t.Run("RemoveAllOwnedBy removes only that owner's sessions", func(t *testing.T) {
		store := NewSessionStore(clockwork.NewFakeClock())
		store.Create(model.CreateSessionParams{ID: "A", Owner: "c1"})
		store.Create(model.CreateSessionParams{ID: "B", Owner: "c1"})
		store.Create(model.CreateSessionParams{ID: "C", Owner: "c2"})
		store.Create(model.CreateSessionParams{ID: "D"})

		removed := store.RemoveAllOwnedBy("c1")

		ids := make([]string, 0, len(removed))
		for _, s := range removed {
			ids = append(ids, s.ID)
		}
		assert.ElementsMatch(t, []string{"A", "B"}, ids)
		assert.True(t, store.Exists("C"))
		assert.True(t, store.Exists("D"))
		assert.Empty(t, store.RemoveAllOwnedBy(""))
	})
}

func TestSessionStore_SweepExpired(t *testing.T) {
	clock := clockwork.NewFakeClock()
	store := NewSessionStore(clock)
	ttl := time.Hour

	store.Create(model.CreateSessionParams{ID: "old"})
	store.Create(model.CreateSessionParams{ID: "old-linked", Owner: "conn-a", Linked: true})
	store.Create(model.CreateSessionParams{ID: "old-linked-detached", Linked: true})
	store.Create(model.CreateSessionParams{ID: "old-restored", Flow: model.LinkFlowRestored, Linked: true})
	clock.Advance(30 * time.Minute)
	store.Create(model.CreateSessionParams{ID: "young"})
	store.Create(model.CreateSessionParams{ID: "missing-ts"})
	store.sessions["missing-ts"].CreatedAt = time.Time{}
	store.Create(model.CreateSessionParams{ID: "future", Linked: true})
	store.sessions["future"].CreatedAt = clock.Now().Add(time.Hour)

	t.Run("boundary is exclusive", func(t *testing.T) {
		removed := store.SweepExpired(clock.Now().Add(30*time.Minute), ttl)

		ids := sessionIDs(removed)
		assert.ElementsMatch(t, []string{"missing-ts", "future"}, ids)
	})

	t.Run("keeps owned and restored links, ages out the rest", func(t *testing.T) {
		clock.Advance(31 * time.Minute)
		removed := store.SweepExpired(clock.Now(), ttl)

		assert.ElementsMatch(t, []string{"old", "old-linked-detached"}, sessionIDs(removed))
		assert.True(t, store.Exists("old-linked"))
		assert.True(t, store.Exists("old-restored"))
		assert.True(t, store.Exists("young"))
	})

	t.Run("linked session ages out once detached", func(t *testing.T) {
		require.True(t, store.SetOwner("old-linked", ""))
		removed := store.SweepExpired(clock.Now(), ttl)

		assert.ElementsMatch(t, []string{"old-linked"}, sessionIDs(removed))
		assert.True(t, store.Exists("old-restored"))
	})
}

func sessionIDs(sessions []*model.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, s := range sessions {
		ids = append(ids, s.ID)
	}
	return ids
}
