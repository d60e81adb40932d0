package domain

import (
	"strings"
	"time"
)

// LinkState describes what one side of a pair of accounts knows about the
// other. Outbound ("I have your number") and inbound ("you have mine") are
// tracked separately.
type LinkState uint8

const (
	LinkUnknown LinkState = iota
	LinkNone
	LinkKnowsPhoneNumber
	LinkContact
)

func (s LinkState) String() string {
	switch s {
	case LinkNone:
		return "none"
	case LinkKnowsPhoneNumber:
		return "knows_phone_number"
	case LinkContact:
		return "contact"
	default:
		return "unknown"
	}
}

// PresenceKind is the shape of an account's online presence.
type PresenceKind uint8

const (
	PresenceEmpty PresenceKind = iota
	PresenceOnline
	PresenceOffline
	PresenceRecently
	PresenceLastWeek
	PresenceLastMonth
)

// Presence is the online status of an account. Expires is set for
// PresenceOnline, WasOnline for PresenceOffline; both are unix seconds.
type Presence struct {
	Kind      PresenceKind
	Expires   int32
	WasOnline int32
}

func OnlinePresence(expires int32) Presence {
	return Presence{Kind: PresenceOnline, Expires: expires}
}

func OfflinePresence(wasOnline int32) Presence {
	return Presence{Kind: PresenceOffline, WasOnline: wasOnline}
}

// IsOnline reports whether the presence is online at the given moment.
func (p Presence) IsOnline(now time.Time) bool {
	return p.Kind == PresenceOnline && int64(p.Expires) > now.Unix()
}

func (p Presence) String() string {
	switch p.Kind {
	case PresenceOnline:
		return "online"
	case PresenceOffline:
		return "offline"
	case PresenceRecently:
		return "recently"
	case PresenceLastWeek:
		return "last_week"
	case PresenceLastMonth:
		return "last_month"
	default:
		return "empty"
	}
}

// Account is a person or a bot.
type Account struct {
	ID         UserID
	AccessHash int64

	FirstName string
	LastName  string
	Username  string
	Phone     string
	Photo     Photo

	IsBot          bool
	BotInfoVersion int32
	// Bot capabilities, meaningful only when IsBot is set.
	BotCanJoinGroups     bool
	BotReadsAllMessage   bool
	BotInlinePlaceholder string

	Outbound LinkState
	Inbound  LinkState

	Presence Presence

	IsSelf       bool
	IsDeleted    bool
	IsVerified   bool
	IsPremium    bool
	IsScam       bool
	IsFake       bool
	IsSupport    bool
	IsRestricted bool
	// RestrictionReason is a human readable reason for IsRestricted.
	RestrictionReason string
	LanguageCode      string

	// IsMin marks a record built from a partial ("min") snapshot: only the
	// fields needed to render a reference are trustworthy.
	IsMin bool

	// CacheVersion is the local record layout version the record was derived
	// with. Records with an older value are refreshed when next read.
	CacheVersion int32
}

// DisplayName returns a name suitable for listing the account.
func (a *Account) DisplayName() string {
	if a.IsDeleted {
		return "Deleted Account"
	}
	name := strings.TrimSpace(a.FirstName + " " + a.LastName)
	if name != "" {
		return name
	}
	if a.Username != "" {
		return a.Username
	}
	if a.Phone != "" {
		return "+" + a.Phone
	}
	return "Unknown"
}

// IsContact reports whether the account is in the current user's contacts.
func (a *Account) IsContact() bool {
	return a.Outbound == LinkContact
}

// IsMutualContact reports whether both sides have each other as contacts.
func (a *Account) IsMutualContact() bool {
	return a.Outbound == LinkContact && a.Inbound == LinkContact
}

// BotCommand is a command advertised by a bot.
type BotCommand struct {
	Command     string
	Description string
}

// AccountFull holds the lazily fetched details of an account.
type AccountFull struct {
	About             string
	Blocked           bool
	CommonChatCount   int32
	PinnedMessageID   int32
	CanCall           bool
	HasPrivateCalls   bool
	VideoCallsAllowed bool

	BotDescription string
	BotCommands    []BotCommand

	ExpiresAt time.Time
}

// IsExpired reports whether the data must be refreshed before it is trusted.
func (f *AccountFull) IsExpired(now time.Time) bool {
	return !now.Before(f.ExpiresAt)
}
