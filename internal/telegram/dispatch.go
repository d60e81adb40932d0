package telegram

import (
	"context"

	"github.com/gotd/td/tg"

	"github.com/danhigham/tgcache/internal/domain"
)

// register routes the updates the cache cares about to the installed
// handler. Entities attached to an update are delivered first.
func (c *Gotd) register(d *tg.UpdateDispatcher) {
	with := func(e tg.Entities, fn func(h UpdateHandler)) error {
		h := c.currentHandler()
		if h == nil {
			return nil
		}
		if ents := convertUpdateEntities(e); !ents.IsEmpty() {
			h.OnEntities(ents)
		}
		fn(h)
		return nil
	}

	d.OnUser(func(ctx context.Context, e tg.Entities, u *tg.UpdateUser) error {
		return with(e, func(h UpdateHandler) {
			if user, ok := e.Users[u.UserID]; ok {
				if p, ok := user.GetPhoto(); ok {
					h.OnAccountPhoto(domain.UserID(u.UserID), convertUserPhoto(p))
				}
			}
		})
	})
	d.OnUserName(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserName) error {
		return with(e, func(h UpdateHandler) {
			username := ""
			for _, n := range u.Usernames {
				if n.Active {
					username = n.Username
					break
				}
			}
			h.OnAccountName(domain.UserID(u.UserID), u.FirstName, u.LastName, username)
		})
	})
	d.OnUserPhone(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserPhone) error {
		return with(e, func(h UpdateHandler) {
			h.OnAccountPhone(domain.UserID(u.UserID), u.Phone)
		})
	})
	d.OnUserStatus(func(ctx context.Context, e tg.Entities, u *tg.UpdateUserStatus) error {
		return with(e, func(h UpdateHandler) {
			h.OnAccountPresence(domain.UserID(u.UserID), convertStatus(u.Status))
		})
	})
	d.OnPeerBlocked(func(ctx context.Context, e tg.Entities, u *tg.UpdatePeerBlocked) error {
		return with(e, func(h UpdateHandler) {
			if id := peerUserID(u.PeerID); id != 0 {
				h.OnAccountBlocked(id, u.Blocked)
			}
		})
	})

	d.OnChat(func(ctx context.Context, e tg.Entities, u *tg.UpdateChat) error {
		return with(e, func(h UpdateHandler) {
			h.OnBasicGroupChanged(domain.ChatID(u.ChatID))
		})
	})
	d.OnChatParticipants(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatParticipants) error {
		return with(e, func(h UpdateHandler) {
			list, ok := u.Participants.(*tg.ChatParticipants)
			if !ok {
				return
			}
			members, creator, version, _ := convertChatParticipants(list)
			h.OnBasicGroupMembers(domain.ChatID(list.ChatID), creator, members, version)
		})
	})
	d.OnChatParticipantAdd(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatParticipantAdd) error {
		return with(e, func(h UpdateHandler) {
			h.OnBasicGroupMemberAdded(domain.ChatID(u.ChatID), domain.UserID(u.UserID),
				domain.UserID(u.InviterID), int32(u.Date), int32(u.Version))
		})
	})
	d.OnChatParticipantDelete(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatParticipantDelete) error {
		return with(e, func(h UpdateHandler) {
			h.OnBasicGroupMemberRemoved(domain.ChatID(u.ChatID), domain.UserID(u.UserID), int32(u.Version))
		})
	})
	d.OnChatParticipantAdmin(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatParticipantAdmin) error {
		return with(e, func(h UpdateHandler) {
			h.OnBasicGroupMemberAdmin(domain.ChatID(u.ChatID), domain.UserID(u.UserID), u.IsAdmin, int32(u.Version))
		})
	})
	d.OnChatDefaultBannedRights(func(ctx context.Context, e tg.Entities, u *tg.UpdateChatDefaultBannedRights) error {
		return with(e, func(h UpdateHandler) {
			perms := convertBannedRights(u.DefaultBannedRights)
			switch p := u.Peer.(type) {
			case *tg.PeerChat:
				h.OnBasicGroupDefaultPermissions(domain.ChatID(p.ChatID), perms, int32(u.Version))
			case *tg.PeerChannel:
				h.OnChannelChanged(domain.ChannelID(p.ChannelID))
			}
		})
	})
	d.OnPinnedMessages(func(ctx context.Context, e tg.Entities, u *tg.UpdatePinnedMessages) error {
		return with(e, func(h UpdateHandler) {
			p, ok := u.Peer.(*tg.PeerChat)
			if !ok {
				return
			}
			ids := make([]int32, 0, len(u.Messages))
			for _, id := range u.Messages {
				ids = append(ids, int32(id))
			}
			h.OnBasicGroupPinned(domain.ChatID(p.ChatID), ids, u.Pinned, int32(u.Pts))
		})
	})

	d.OnChannel(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannel) error {
		return with(e, func(h UpdateHandler) {
			h.OnChannelChanged(domain.ChannelID(u.ChannelID))
		})
	})
	d.OnChannelParticipant(func(ctx context.Context, e tg.Entities, u *tg.UpdateChannelParticipant) error {
		return with(e, func(h UpdateHandler) {
			old, nw := domain.LeftStatus(), domain.LeftStatus()
			if p, ok := u.GetPrevParticipant(); ok {
				if m, ok := convertChannelParticipant(p); ok {
					old = m.Status
				}
			}
			if p, ok := u.GetNewParticipant(); ok {
				if m, ok := convertChannelParticipant(p); ok {
					nw = m.Status
				}
			}
			h.OnChannelMember(domain.ChannelID(u.ChannelID), domain.UserID(u.UserID), old, nw, int32(u.Date))
		})
	})

	d.OnEncryption(func(ctx context.Context, e tg.Entities, u *tg.UpdateEncryption) error {
		return with(e, func(h UpdateHandler) {
			if chat, ok := convertEncryptedChat(u.Chat, c.selfID.Load()); ok {
				h.OnSecretChat(chat)
			}
		})
	})
}
