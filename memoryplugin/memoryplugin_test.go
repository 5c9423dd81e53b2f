package memoryplugin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/memoryplugin"
)

func TestWorkingMemoryStoreAndRetrieve(t *testing.T) {
	p := memoryplugin.NewWorkingMemoryPlugin(nil)
	require.NoError(t, p.Underlying().Store(memoryplugin.Entry{
		Key: "notes", Description: "scratch notes", Value: "todo: check logs", Tier: memoryplugin.TierRaw,
	}))
	entry, ok := p.Underlying().Retrieve("raw.notes")
	require.True(t, ok)
	require.Equal(t, "todo: check logs", entry.Value)
}

func TestStoreRejectsOverlongDescription(t *testing.T) {
	s := memoryplugin.NewWorkingMemoryPlugin(nil).Underlying()
	long := make([]byte, 151)
	for i := range long {
		long[i] = 'a'
	}
	err := s.Store(memoryplugin.Entry{Key: "x", Description: string(long)})
	require.Error(t, err)
}

func TestCleanupRawOnlyRemovesRawTier(t *testing.T) {
	s := memoryplugin.NewWorkingMemoryPlugin(nil).Underlying()
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "a", Tier: memoryplugin.TierRaw, Value: 1}))
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "b", Tier: memoryplugin.TierFindings, Value: 2}))

	n := s.CleanupRaw()
	require.Equal(t, 1, n)
	require.Len(t, s.List(""), 1)
	require.Equal(t, []string{"findings.b"}, s.List(""))
}

func TestCompactSkipsPinnedAndPrefersLowPriorityFirst(t *testing.T) {
	s := memoryplugin.NewWorkingMemoryPlugin(nil).Underlying()
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "pinned", Value: "keep me", Pinned: true, Priority: memoryplugin.PriorityLow}))
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "low", Value: "evict me first", Priority: memoryplugin.PriorityLow}))
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "high", Value: "keep if possible", Priority: memoryplugin.PriorityHigh}))

	freed := s.Compact(1, nil)
	require.Positive(t, freed)

	_, pinnedStillThere := s.Retrieve("pinned")
	require.True(t, pinnedStillThere)
	_, lowStillThere := s.Retrieve("low")
	require.False(t, lowStillThere, "lowest-priority unpinned entry should be evicted first")
	_, highStillThere := s.Retrieve("high")
	require.True(t, highStillThere, "higher-priority entry should survive while a lower-priority one can still be evicted")
}

func TestClearScopeByTaskID(t *testing.T) {
	s := memoryplugin.NewWorkingMemoryPlugin(nil).Underlying()
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "task-a", Value: 1, Scope: memoryplugin.ScopeTask("task-1")}))
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "task-b", Value: 2, Scope: memoryplugin.ScopeTask("task-2")}))
	require.NoError(t, s.Store(memoryplugin.Entry{Key: "session-a", Value: 3, Scope: memoryplugin.ScopeSession}))

	n := s.ClearScope("task", "task-1")
	require.Equal(t, 1, n)
	require.Len(t, s.List(""), 2)
}

type fakeBackend struct {
	saved map[string]memoryplugin.Entry
}

func newFakeBackend() *fakeBackend { return &fakeBackend{saved: map[string]memoryplugin.Entry{}} }

func (b *fakeBackend) SaveMemoryEntry(namespace string, e memoryplugin.Entry) error {
	b.saved[namespace+"/"+e.Key] = e
	return nil
}

func (b *fakeBackend) LoadMemoryEntries(namespace string) ([]memoryplugin.Entry, error) {
	var out []memoryplugin.Entry
	prefix := namespace + "/"
	for k, e := range b.saved {
		if len(k) > len(prefix) && k[:len(prefix)] == prefix {
			out = append(out, e)
		}
	}
	return out, nil
}

func (b *fakeBackend) DeleteMemoryEntry(namespace, key string) error {
	delete(b.saved, namespace+"/"+key)
	return nil
}

func TestInContextPersistentScopeMirrorsToBackend(t *testing.T) {
	backend := newFakeBackend()
	p := memoryplugin.NewInContextMemoryPlugin(nil, backend)

	require.NoError(t, p.Store(memoryplugin.Entry{Key: "conclusion", Value: "root cause found", Scope: memoryplugin.ScopePersistent}))
	require.Len(t, backend.saved, 1)

	reloaded := memoryplugin.NewInContextMemoryPlugin(nil, backend)
	require.NoError(t, reloaded.LoadPersistent())
	entry, ok := reloaded.Underlying().Retrieve("conclusion")
	require.True(t, ok)
	require.Equal(t, "root cause found", entry.Value)
}

func TestInContextSessionScopeDoesNotReachBackend(t *testing.T) {
	backend := newFakeBackend()
	p := memoryplugin.NewInContextMemoryPlugin(nil, backend)
	require.NoError(t, p.Store(memoryplugin.Entry{Key: "ephemeral", Value: "transient", Scope: memoryplugin.ScopeSession}))
	require.Empty(t, backend.saved)
}

func TestStateRoundTripsThroughRestore(t *testing.T) {
	p := memoryplugin.NewWorkingMemoryPlugin(nil)
	require.NoError(t, p.Underlying().Store(memoryplugin.Entry{Key: "a", Value: "v"}))

	state, err := p.State()
	require.NoError(t, err)

	fresh := memoryplugin.NewWorkingMemoryPlugin(nil)
	require.NoError(t, fresh.Restore(state))
	_, ok := fresh.Underlying().Retrieve("a")
	require.True(t, ok)
}
