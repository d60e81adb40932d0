package domain

import "time"

// Channel is a broadcast channel or a megagroup. IsBroadcast distinguishes
// the two: broadcast channels only let administrators post, megagroups are
// discussion groups.
type Channel struct {
	ID         ChannelID
	AccessHash int64
	Title      string
	Username   string
	Photo      Photo
	Date       int32

	Status             MemberStatus
	DefaultPermissions Permissions

	IsBroadcast      bool
	ParticipantCount int32
	// Version is the channel state version (pts) reported by full snapshots.
	Version int32

	HasLinkedChat     bool
	HasLocation       bool
	SignMessages      bool
	IsSlowModeEnabled bool
	IsVerified        bool
	IsScam            bool
	IsFake            bool
	IsRestricted      bool
	RestrictionReason string
	IsMin             bool

	CacheVersion int32
}

// IsMegagroup reports whether the channel is a discussion group.
func (c *Channel) IsMegagroup() bool {
	return !c.IsBroadcast
}

// ChannelFull holds the lazily fetched details of a channel.
type ChannelFull struct {
	Description      string
	ParticipantCount int32
	AdminCount       int32
	RestrictedCount  int32
	BannedCount      int32
	InviteLink       string
	StickerSetID     int64
	LinkedChannelID  ChannelID
	SlowModeDelay    int32

	MigratedFromChatID       ChatID
	MigratedFromMaxMessageID int32

	CanGetParticipants bool
	CanSetUsername     bool
	CanSetStickerSet   bool
	IsAllHistoryHidden bool

	Version int32

	// Members is the cached administrator/recent member list; nil when it
	// has not been fetched or was invalidated.
	Members []Member

	ExpiresAt time.Time
}

// IsExpired reports whether the data must be refreshed before it is trusted.
func (f *ChannelFull) IsExpired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}

// FindMember returns the index of the cached member with the given id, or -1.
func (f *ChannelFull) FindMember(id UserID) int {
	for i, m := range f.Members {
		if m.UserID == id {
			return i
		}
	}
	return -1
}
