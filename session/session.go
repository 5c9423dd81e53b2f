// Package session defines the serializable session document (spec §4.8)
// and the Store contract two concrete backends satisfy: a file-backed
// store and a SQL-backed store. Grounded on the teacher's pkg/session
// package (the Session/Service split, generalized here into a single
// Document/Store pair since this module has no separate app/user
// namespacing) and pkg/agent/task_service_sql.go's dialect-switch
// convention (sqlite/postgres/mysql behind one driver name).
package session

import (
	"time"

	"github.com/kadirpekel/agentloop/conversation"
	"github.com/kadirpekel/agentloop/memoryplugin"
	"github.com/kadirpekel/agentloop/permission"
)

// Document is the full serializable state of one run, as persisted
// between turns or across a process restart (spec §4.8).
type Document struct {
	Version            int
	SessionID          string
	Conversation       []conversation.Item
	ApprovalState      permission.ApprovalState
	PluginState        map[string][]memoryplugin.Entry
	ExecutionMetrics    Metrics
	LastCheckpoint     time.Time
}

// Metrics is the execution-metrics snapshot embedded in a Document.
type Metrics struct {
	IterationsRun   int
	ToolCallsTotal  int
	ToolCallsFailed int
	TokensUsedLast  int
	CompactionsRun  int
}

const CurrentVersion = 1

// Store is the persistence contract a backend must satisfy. Save has
// at-least-once semantics: callers that crash between a successful Save
// and acting on its result may retry Save safely, since it is a full
// overwrite keyed by SessionID, not an append.
type Store interface {
	Load(sessionID string) (Document, error)
	Save(doc Document) error
	Delete(sessionID string) error
}

// ErrNotFound is returned by Load when no document exists for the given
// session ID.
var ErrNotFound = notFoundErr{}

type notFoundErr struct{}

func (notFoundErr) Error() string { return "session: not found" }
