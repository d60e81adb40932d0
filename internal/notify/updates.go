// Package notify turns record mutations into client-visible updates: one
// update per observable change, each carrying the complete current view.
package notify

import "github.com/danhigham/tgcache/internal/domain"

// Update is a notification about one entity.
type Update interface {
	Ref() domain.Ref
}

type AccountUpdated struct {
	Account domain.Account
}

// AccountStatusUpdated reports a presence change only; presence is not part
// of the AccountUpdated shape.
type AccountStatusUpdated struct {
	UserID   domain.UserID
	Presence domain.Presence
}

type AccountFullUpdated struct {
	UserID domain.UserID
	Full   domain.AccountFull
}

type BasicGroupUpdated struct {
	Group domain.BasicGroup
}

type BasicGroupFullUpdated struct {
	ChatID domain.ChatID
	Full   domain.BasicGroupFull
}

type ChannelUpdated struct {
	Channel domain.Channel
}

type ChannelFullUpdated struct {
	ChannelID domain.ChannelID
	Full      domain.ChannelFull
}

type SecretChatUpdated struct {
	SecretChat domain.SecretChat
}

// ContactsUpdated carries the full sorted contact list.
type ContactsUpdated struct {
	UserIDs []domain.UserID
}

func (u AccountUpdated) Ref() domain.Ref        { return domain.AccountRef(u.Account.ID) }
func (u AccountStatusUpdated) Ref() domain.Ref  { return domain.AccountRef(u.UserID) }
func (u AccountFullUpdated) Ref() domain.Ref    { return domain.AccountRef(u.UserID) }
func (u BasicGroupUpdated) Ref() domain.Ref     { return domain.BasicGroupRef(u.Group.ID) }
func (u BasicGroupFullUpdated) Ref() domain.Ref { return domain.BasicGroupRef(u.ChatID) }
func (u ChannelUpdated) Ref() domain.Ref        { return domain.ChannelRef(u.Channel.ID) }
func (u ChannelFullUpdated) Ref() domain.Ref    { return domain.ChannelRef(u.ChannelID) }
func (u SecretChatUpdated) Ref() domain.Ref     { return domain.SecretChatRef(u.SecretChat.ID) }
func (u ContactsUpdated) Ref() domain.Ref       { return domain.Ref{} }
