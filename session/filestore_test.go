package session_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kadirpekel/agentloop/conversation"
	"github.com/kadirpekel/agentloop/session"
)

func TestFileStoreLoadMissingReturnsNotFound(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Load("nope")
	require.ErrorIs(t, err, session.ErrNotFound)
}

func TestFileStoreSaveLoadRoundTrip(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	doc := session.Document{
		SessionID:    "sess-1",
		Conversation: []conversation.Item{conversation.TextMessage(conversation.RoleUser, "hi")},
		ExecutionMetrics: session.Metrics{IterationsRun: 2, ToolCallsTotal: 1},
	}
	require.NoError(t, store.Save(doc))

	loaded, err := store.Load("sess-1")
	require.NoError(t, err)
	require.Equal(t, session.CurrentVersion, loaded.Version)
	require.Equal(t, "sess-1", loaded.SessionID)
	require.Len(t, loaded.Conversation, 1)
	require.Equal(t, 2, loaded.ExecutionMetrics.IterationsRun)
}

func TestFileStoreSaveOverwritesPriorDocument(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.Save(session.Document{SessionID: "sess-1", ExecutionMetrics: session.Metrics{IterationsRun: 1}}))
	require.NoError(t, store.Save(session.Document{SessionID: "sess-1", ExecutionMetrics: session.Metrics{IterationsRun: 5}}))

	loaded, err := store.Load("sess-1")
	require.NoError(t, err)
	require.Equal(t, 5, loaded.ExecutionMetrics.IterationsRun)
}

func TestFileStoreDeleteIsIdempotent(t *testing.T) {
	store, err := session.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Save(session.Document{SessionID: "sess-1"}))

	require.NoError(t, store.Delete("sess-1"))
	require.NoError(t, store.Delete("sess-1"), "deleting an already-deleted session must not error")

	_, err = store.Load("sess-1")
	require.ErrorIs(t, err, session.ErrNotFound)
}
