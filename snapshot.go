package main

import (
	"sync/atomic"
	"time"
)

// Snapshot is one rendered exposition. It is never modified after being
// stored.
type Snapshot struct {
	Body      []byte
	CreatedAt time.Time
}

func (s *Snapshot) Ready() bool {
	return !s.CreatedAt.IsZero()
}

var emptySnapshot = &Snapshot{}

// SnapshotStore holds the live snapshot. The refresh loop is the only
// writer; HTTP handlers read it concurrently.
type SnapshotStore struct {
	current atomic.Pointer[Snapshot]
}

func NewSnapshotStore() *SnapshotStore {
	s := &SnapshotStore{}
	s.current.Store(emptySnapshot)
	return s
}

func (s *SnapshotStore) Load() *Snapshot {
	return s.current.Load()
}

func (s *SnapshotStore) Store(snap *Snapshot) {
	s.current.Store(snap)
}
