package domain

import "time"

// BasicGroup is a small group chat.
//
// The server advances three version counters independently: Version tracks
// membership and general state, DefaultPermissionsVersion the default
// permission set and PinnedMessageVersion the pinned message. None of them
// implies anything about the others.
type BasicGroup struct {
	ID               ChatID
	Title            string
	Photo            Photo
	ParticipantCount int32
	Date             int32

	Status             MemberStatus
	DefaultPermissions Permissions

	Version                   int32
	DefaultPermissionsVersion int32
	PinnedMessageVersion      int32

	// MigratedTo is set once the group has been upgraded to a megagroup.
	MigratedTo   ChannelID
	IsActive     bool
	IsCallActive bool

	CacheVersion int32
}

// IsMigrated reports whether the group was upgraded to a channel.
func (g *BasicGroup) IsMigrated() bool {
	return g.MigratedTo != 0
}

// BasicGroupFull holds the lazily fetched details of a basic group.
type BasicGroupFull struct {
	Description     string
	CreatorUserID   UserID
	Members         []Member
	InviteLink      string
	PinnedMessageID int32
	// Version is the participants version the member list was taken at.
	Version int32

	ExpiresAt time.Time
}

// IsExpired reports whether the data must be refreshed before it is trusted.
func (f *BasicGroupFull) IsExpired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// FindMember returns the index of the member with the given id, or -1.
func (f *BasicGroupFull) FindMember(id UserID) int {
	for i, m := range f.Members {
		if m.UserID == id {
			return i
		}
	}
	return -1
}
