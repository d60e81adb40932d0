package telegram

import (
	"context"

	"github.com/danhigham/tgcache/internal/domain"
)

// InputAccount addresses an account in a request.
type InputAccount struct {
	ID         domain.UserID
	AccessHash int64
}

// InputChannel addresses a channel in a request.
type InputChannel struct {
	ID         domain.ChannelID
	AccessHash int64
}

// Peer addresses a chat whose title or description is edited: exactly one
// of BasicGroup and Channel is set.
type Peer struct {
	BasicGroup domain.ChatID
	Channel    InputChannel
}

// BasicGroupSnapshot is a basic group as delivered by the server. A
// forbidden snapshot only carries the id and title: the current account was
// removed from the group.
type BasicGroupSnapshot struct {
	Group     domain.BasicGroup
	Forbidden bool
	// MigratedToAccessHash accompanies Group.MigratedTo.
	MigratedToAccessHash int64
}

// ChannelSnapshot is a channel as delivered by the server. A forbidden
// snapshot carries id, access hash, title, kind and the ban expiry.
type ChannelSnapshot struct {
	Channel   domain.Channel
	Forbidden bool
}

// Entities is the set of records attached to a response or update.
type Entities struct {
	Accounts    []domain.Account
	BasicGroups []BasicGroupSnapshot
	Channels    []ChannelSnapshot
}

// IsEmpty reports whether e carries nothing.
func (e *Entities) IsEmpty() bool {
	return e == nil || len(e.Accounts)+len(e.BasicGroups)+len(e.Channels) == 0
}

// Merge appends the records of o.
func (e *Entities) Merge(o *Entities) {
	if o == nil {
		return
	}
	e.Accounts = append(e.Accounts, o.Accounts...)
	e.BasicGroups = append(e.BasicGroups, o.BasicGroups...)
	e.Channels = append(e.Channels, o.Channels...)
}

type AccountFullResult struct {
	UserID   domain.UserID
	Full     domain.AccountFull
	Entities Entities
}

type BasicGroupFullResult struct {
	ChatID   domain.ChatID
	Full     domain.BasicGroupFull
	Entities Entities
}

type ChannelFullResult struct {
	ChannelID domain.ChannelID
	Full      domain.ChannelFull
	Entities  Entities
}

// MemberFilter selects which channel members to list.
type MemberFilter uint8

const (
	MembersRecent MemberFilter = iota
	MembersAdministrators
	MembersRestricted
	MembersBanned
	MembersBots
)

type MembersResult struct {
	Total    int32
	Members  []domain.Member
	Entities Entities
}

type ContactsResult struct {
	// NotModified is set when the hash matched and nothing was transferred.
	NotModified bool
	UserIDs     []domain.UserID
	SavedCount  int32
	Entities    Entities
}

type ImportResult struct {
	// UserIDs is indexed like the request; zero means not matched.
	UserIDs []domain.UserID
	// Retry lists request indexes the server asked to resend.
	Retry    []int
	Entities Entities
}

type InviteResult struct {
	// Missing lists accounts whose privacy settings prevented the invite.
	Missing  []domain.UserID
	Entities Entities
}

// Transport is the typed request/response contract the cache relies on.
// Implementations translate to and from the wire format; errors are
// classified with the sentinels in errors.go.
type Transport interface {
	GetAccounts(ctx context.Context, accounts []InputAccount) (*Entities, error)
	GetBasicGroups(ctx context.Context, ids []domain.ChatID) (*Entities, error)
	GetChannels(ctx context.Context, channels []InputChannel) (*Entities, error)

	GetAccountFull(ctx context.Context, account InputAccount) (*AccountFullResult, error)
	GetBasicGroupFull(ctx context.Context, id domain.ChatID) (*BasicGroupFullResult, error)
	GetChannelFull(ctx context.Context, channel InputChannel) (*ChannelFullResult, error)
	GetChannelMembers(ctx context.Context, channel InputChannel, filter MemberFilter, offset, limit int) (*MembersResult, error)

	GetContacts(ctx context.Context, hash int64) (*ContactsResult, error)
	ImportContacts(ctx context.Context, contacts []domain.Contact) (*ImportResult, error)
	DeleteContacts(ctx context.Context, accounts []InputAccount) error
	SetBlocked(ctx context.Context, account InputAccount, blocked bool) error

	AddBasicGroupMember(ctx context.Context, id domain.ChatID, account InputAccount, forwardLimit int) (*InviteResult, error)
	RemoveBasicGroupMember(ctx context.Context, id domain.ChatID, account InputAccount) error
	SetBasicGroupAdmin(ctx context.Context, id domain.ChatID, account InputAccount, isAdmin bool) error

	InviteToChannel(ctx context.Context, channel InputChannel, accounts []InputAccount) (*InviteResult, error)
	JoinChannel(ctx context.Context, channel InputChannel) error
	LeaveChannel(ctx context.Context, channel InputChannel) error
	EditChannelAdmin(ctx context.Context, channel InputChannel, account InputAccount, rights domain.AdminRights, rank string) error
	// EditChannelBanned applies a Regular, Restricted, Banned or Left status
	// through the server's single "banned rights" primitive.
	EditChannelBanned(ctx context.Context, channel InputChannel, account InputAccount, status domain.MemberStatus) error

	EditTitle(ctx context.Context, peer Peer, title string) error
	EditAbout(ctx context.Context, peer Peer, about string) error
}

// UpdateHandler receives push events from the transport. Records attached to
// an update are delivered through OnEntities before the update itself.
type UpdateHandler interface {
	OnEntities(e *Entities)

	OnAccountName(id domain.UserID, firstName, lastName, username string)
	OnAccountPhone(id domain.UserID, phone string)
	OnAccountPhoto(id domain.UserID, photo domain.Photo)
	OnAccountPresence(id domain.UserID, presence domain.Presence)
	OnAccountBlocked(id domain.UserID, blocked bool)

	OnBasicGroupChanged(id domain.ChatID)
	OnBasicGroupMembers(id domain.ChatID, creator domain.UserID, members []domain.Member, version int32)
	OnBasicGroupMemberAdded(id domain.ChatID, user, inviter domain.UserID, date, version int32)
	OnBasicGroupMemberRemoved(id domain.ChatID, user domain.UserID, version int32)
	OnBasicGroupMemberAdmin(id domain.ChatID, user domain.UserID, isAdmin bool, version int32)
	OnBasicGroupDefaultPermissions(id domain.ChatID, permissions domain.Permissions, version int32)
	// OnBasicGroupPinned reports messages pinned or unpinned. version is the
	// account update sequence number, independent of the group version.
	OnBasicGroupPinned(id domain.ChatID, messageIDs []int32, pinned bool, version int32)

	OnChannelChanged(id domain.ChannelID)
	OnChannelMember(id domain.ChannelID, user domain.UserID, old, new domain.MemberStatus, date int32)

	OnSecretChat(chat domain.SecretChat)
}
