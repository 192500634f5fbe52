package core

// Entity is a persisted row addressable by id.
//
// PersistentState returns the column values written by an update, keyed by
// column name. The id, revision and creation timestamp are managed by the
// persistence layer and must not appear in the map.
type Entity interface {
	EntityID() string
	PersistentState() map[string]any
}

// Versioned is implemented by entities guarded by a revision column.
//
// Every update and delete of a Versioned entity is conditioned on the stored
// revision; the persistence layer treats a zero-row result as a concurrent
// modification rather than applying the write partially.
type Versioned interface {
	Entity
	EntityRevision() int
	SetEntityRevision(revision int)
}

// SuspensionState is the persisted activation code of jobs, job definitions
// and batches.
type SuspensionState int

const (
	SuspensionStateActive    SuspensionState = 1
	SuspensionStateSuspended SuspensionState = 2
)
