package ui

import (
	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/domain"
)

// CacheUpdatedMsg carries a change notification for one entity. A zero Ref
// means the contact list changed.
type CacheUpdatedMsg struct {
	Ref domain.Ref
}

// SnapshotMsg delivers a fresh copy of every cached record.
type SnapshotMsg struct {
	Snapshot cache.Snapshot
	Err      error
}

// EntitySelectedMsg is emitted when the cursor moves to another entity.
type EntitySelectedMsg struct {
	Ref domain.Ref
}

// DetailLoadedMsg delivers the rendered detail of an entity.
type DetailLoadedMsg struct {
	Ref      domain.Ref
	Markdown string
	Err      error
}

// StatusMsg updates the status bar.
type StatusMsg struct {
	Text      string
	Connected bool
}

// SplashDoneMsg signals that the splash screen timeout has elapsed.
type SplashDoneMsg struct{}

// clockTickMsg triggers a status bar time refresh.
type clockTickMsg struct{}
