package telegram

import (
	"strings"

	"github.com/gotd/td/tg"

	"github.com/danhigham/tgcache/internal/domain"
)

// convertUser converts a wire user. Empty users yield ok=false.
func convertUser(u tg.UserClass) (domain.Account, bool) {
	user, ok := u.(*tg.User)
	if !ok {
		return domain.Account{}, false
	}
	a := domain.Account{
		ID:                   domain.UserID(user.ID),
		AccessHash:           user.AccessHash,
		FirstName:            user.FirstName,
		LastName:             user.LastName,
		Username:             userUsername(user),
		Phone:                user.Phone,
		IsBot:                user.Bot,
		BotInfoVersion:       int32(user.BotInfoVersion),
		BotCanJoinGroups:     user.Bot && !user.BotNochats,
		BotReadsAllMessage:   user.BotChatHistory,
		BotInlinePlaceholder: user.BotInlinePlaceholder,
		IsSelf:               user.Self,
		IsDeleted:            user.Deleted,
		IsVerified:           user.Verified,
		IsPremium:            user.Premium,
		IsScam:               user.Scam,
		IsFake:               user.Fake,
		IsSupport:            user.Support,
		IsRestricted:         user.Restricted,
		RestrictionReason:    restrictionText(user.RestrictionReason),
		LanguageCode:         user.LangCode,
		IsMin:                user.Min,
		Outbound:             domain.LinkNone,
		Inbound:              domain.LinkUnknown,
	}
	switch {
	case user.Contact:
		a.Outbound = domain.LinkContact
	case user.Phone != "":
		a.Outbound = domain.LinkKnowsPhoneNumber
	}
	if user.MutualContact {
		a.Inbound = domain.LinkContact
	}
	if p, ok := user.GetPhoto(); ok {
		a.Photo = convertUserPhoto(p)
	}
	if s, ok := user.GetStatus(); ok {
		a.Presence = convertStatus(s)
	}
	return a, true
}

func userUsername(u *tg.User) string {
	if u.Username != "" {
		return u.Username
	}
	for _, n := range u.Usernames {
		if n.Active {
			return n.Username
		}
	}
	return ""
}

func restrictionText(reasons []tg.RestrictionReason) string {
	texts := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r.Text != "" {
			texts = append(texts, r.Text)
		}
	}
	return strings.Join(texts, "; ")
}

func convertUserPhoto(p tg.UserProfilePhotoClass) domain.Photo {
	switch p := p.(type) {
	case *tg.UserProfilePhoto:
		return domain.Photo{ID: p.PhotoID, DCID: p.DCID, HasVideo: p.HasVideo, Stripped: p.StrippedThumb}
	default:
		return domain.Photo{}
	}
}

func convertChatPhoto(p tg.ChatPhotoClass) domain.Photo {
	switch p := p.(type) {
	case *tg.ChatPhoto:
		return domain.Photo{ID: p.PhotoID, DCID: p.DCID, HasVideo: p.HasVideo, Stripped: p.StrippedThumb}
	default:
		return domain.Photo{}
	}
}

func convertStatus(s tg.UserStatusClass) domain.Presence {
	switch s := s.(type) {
	case *tg.UserStatusOnline:
		return domain.OnlinePresence(int32(s.Expires))
	case *tg.UserStatusOffline:
		return domain.OfflinePresence(int32(s.WasOnline))
	case *tg.UserStatusRecently:
		return domain.Presence{Kind: domain.PresenceRecently}
	case *tg.UserStatusLastWeek:
		return domain.Presence{Kind: domain.PresenceLastWeek}
	case *tg.UserStatusLastMonth:
		return domain.Presence{Kind: domain.PresenceLastMonth}
	default:
		return domain.Presence{}
	}
}

func convertAdminRights(r tg.ChatAdminRights) domain.AdminRights {
	return domain.AdminRights{
		CanManageChat:     r.Other,
		CanChangeInfo:     r.ChangeInfo,
		CanPostMessages:   r.PostMessages,
		CanEditMessages:   r.EditMessages,
		CanDeleteMessages: r.DeleteMessages,
		CanBanUsers:       r.BanUsers,
		CanInviteUsers:    r.InviteUsers,
		CanPinMessages:    r.PinMessages,
		CanPromoteMembers: r.AddAdmins,
		CanManageCalls:    r.ManageCall,
		CanManageTopics:   r.ManageTopics,
		IsAnonymous:       r.Anonymous,
	}
}

func adminRightsToWire(r domain.AdminRights) tg.ChatAdminRights {
	return tg.ChatAdminRights{
		Other:          r.CanManageChat,
		ChangeInfo:     r.CanChangeInfo,
		PostMessages:   r.CanPostMessages,
		EditMessages:   r.CanEditMessages,
		DeleteMessages: r.CanDeleteMessages,
		BanUsers:       r.CanBanUsers,
		InviteUsers:    r.CanInviteUsers,
		PinMessages:    r.CanPinMessages,
		AddAdmins:      r.CanPromoteMembers,
		ManageCall:     r.CanManageCalls,
		ManageTopics:   r.CanManageTopics,
		Anonymous:      r.IsAnonymous,
	}
}

// convertBannedRights turns a set of forbidden actions into the permissions
// left to the holder.
func convertBannedRights(r tg.ChatBannedRights) domain.Permissions {
	return domain.Permissions{
		CanSendMessages:       !r.SendMessages,
		CanSendMedia:          !r.SendMedia,
		CanSendPolls:          !r.SendPolls,
		CanSendOther:          !(r.SendStickers || r.SendGifs || r.SendGames || r.SendInline),
		CanAddWebPagePreviews: !r.EmbedLinks,
		CanChangeInfo:         !r.ChangeInfo,
		CanInviteUsers:        !r.InviteUsers,
		CanPinMessages:        !r.PinMessages,
		CanManageTopics:       !r.ManageTopics,
	}
}

func permissionsToWire(p domain.Permissions, until int32) tg.ChatBannedRights {
	other := !p.CanSendOther
	return tg.ChatBannedRights{
		SendMessages: !p.CanSendMessages,
		SendMedia:    !p.CanSendMedia,
		SendPolls:    !p.CanSendPolls,
		SendStickers: other,
		SendGifs:     other,
		SendGames:    other,
		SendInline:   other,
		EmbedLinks:   !p.CanAddWebPagePreviews,
		ChangeInfo:   !p.CanChangeInfo,
		InviteUsers:  !p.CanInviteUsers,
		PinMessages:  !p.CanPinMessages,
		ManageTopics: !p.CanManageTopics,
		UntilDate:    int(until),
	}
}

// statusToWire expresses a status through banned rights. Regular and Left
// both lift every restriction; the server tells them apart by whether the
// account is still in the channel.
func statusToWire(s domain.MemberStatus) tg.ChatBannedRights {
	switch s.Kind {
	case domain.MemberRestricted:
		return permissionsToWire(s.Restrictions, s.Until)
	case domain.MemberBanned:
		return tg.ChatBannedRights{ViewMessages: true, UntilDate: int(s.Until)}
	default:
		return tg.ChatBannedRights{}
	}
}

// convertChat converts a wire chat into a basic group or a channel snapshot.
func convertChat(c tg.ChatClass, e *Entities) {
	switch c := c.(type) {
	case *tg.Chat:
		g := domain.BasicGroup{
			ID:               domain.ChatID(c.ID),
			Title:            c.Title,
			Photo:            convertChatPhoto(c.Photo),
			ParticipantCount: int32(c.ParticipantsCount),
			Date:             int32(c.Date),
			Version:          int32(c.Version),
			IsActive:         !c.Deactivated,
			IsCallActive:     c.CallActive,
		}
		if dr, ok := c.GetDefaultBannedRights(); ok {
			g.DefaultPermissions = convertBannedRights(dr)
		} else {
			g.DefaultPermissions = domain.AllPermissions()
		}
		switch {
		case c.Creator:
			g.Status = domain.CreatorStatus("", false, !c.Left)
		case c.Left:
			g.Status = domain.LeftStatus()
		default:
			if ar, ok := c.GetAdminRights(); ok {
				g.Status = domain.AdministratorStatus(convertAdminRights(ar), "", false)
			} else {
				g.Status = domain.RegularStatus()
			}
		}
		snap := BasicGroupSnapshot{Group: g}
		if mt, ok := c.GetMigratedTo(); ok {
			if ic, ok := mt.(*tg.InputChannel); ok {
				snap.Group.MigratedTo = domain.ChannelID(ic.ChannelID)
				snap.MigratedToAccessHash = ic.AccessHash
			}
		}
		e.BasicGroups = append(e.BasicGroups, snap)
	case *tg.ChatForbidden:
		e.BasicGroups = append(e.BasicGroups, BasicGroupSnapshot{
			Group:     domain.BasicGroup{ID: domain.ChatID(c.ID), Title: c.Title, Status: domain.LeftStatus()},
			Forbidden: true,
		})
	case *tg.Channel:
		e.Channels = append(e.Channels, ChannelSnapshot{Channel: convertChannel(c)})
	case *tg.ChannelForbidden:
		e.Channels = append(e.Channels, ChannelSnapshot{
			Channel: domain.Channel{
				ID:          domain.ChannelID(c.ID),
				AccessHash:  c.AccessHash,
				Title:       c.Title,
				IsBroadcast: c.Broadcast,
				Status:      domain.BannedStatus(int32(c.UntilDate)),
			},
			Forbidden: true,
		})
	}
}

func convertChannel(c *tg.Channel) domain.Channel {
	ch := domain.Channel{
		ID:                domain.ChannelID(c.ID),
		Title:             c.Title,
		Username:          c.Username,
		Photo:             convertChatPhoto(c.Photo),
		Date:              int32(c.Date),
		IsBroadcast:       c.Broadcast,
		HasLinkedChat:     c.HasLink,
		HasLocation:       c.HasGeo,
		SignMessages:      c.Signatures,
		IsSlowModeEnabled: c.SlowmodeEnabled,
		IsVerified:        c.Verified,
		IsScam:            c.Scam,
		IsFake:            c.Fake,
		IsRestricted:      c.Restricted,
		RestrictionReason: restrictionText(c.RestrictionReason),
		IsMin:             c.Min,
	}
	if h, ok := c.GetAccessHash(); ok {
		ch.AccessHash = h
	}
	if n, ok := c.GetParticipantsCount(); ok {
		ch.ParticipantCount = int32(n)
	}
	if dr, ok := c.GetDefaultBannedRights(); ok {
		ch.DefaultPermissions = convertBannedRights(dr)
	} else {
		ch.DefaultPermissions = domain.AllPermissions()
	}
	switch {
	case c.Creator:
		ch.Status = domain.CreatorStatus("", false, !c.Left)
	case c.Left:
		ch.Status = domain.LeftStatus()
	default:
		if ar, ok := c.GetAdminRights(); ok {
			ch.Status = domain.AdministratorStatus(convertAdminRights(ar), "", false)
		} else if br, ok := c.GetBannedRights(); ok && br.ViewMessages {
			ch.Status = domain.BannedStatus(int32(br.UntilDate))
		} else if ok {
			ch.Status = domain.RestrictedStatus(true, int32(br.UntilDate), convertBannedRights(br))
		} else {
			ch.Status = domain.RegularStatus()
		}
	}
	return ch
}

// convertEntities converts the users and chats attached to a response.
func convertEntities(users []tg.UserClass, chats []tg.ChatClass) Entities {
	var e Entities
	for _, u := range users {
		if a, ok := convertUser(u); ok {
			e.Accounts = append(e.Accounts, a)
		}
	}
	for _, c := range chats {
		convertChat(c, &e)
	}
	return e
}

// convertUpdateEntities converts the entities gotd collects for an update.
func convertUpdateEntities(ents tg.Entities) *Entities {
	var e Entities
	for _, u := range ents.Users {
		if a, ok := convertUser(u); ok {
			e.Accounts = append(e.Accounts, a)
		}
	}
	for _, c := range ents.Chats {
		convertChat(c, &e)
	}
	for _, c := range ents.Channels {
		convertChat(c, &e)
	}
	return &e
}

func convertChatParticipant(p tg.ChatParticipantClass) (domain.Member, bool) {
	switch p := p.(type) {
	case *tg.ChatParticipantCreator:
		return domain.Member{
			UserID:        domain.UserID(p.UserID),
			InviterUserID: domain.UserID(p.UserID),
			Status:        domain.CreatorStatus("", false, true),
		}, true
	case *tg.ChatParticipantAdmin:
		return domain.Member{
			UserID:        domain.UserID(p.UserID),
			InviterUserID: domain.UserID(p.InviterID),
			JoinedDate:    int32(p.Date),
			Status:        domain.AdministratorStatus(basicGroupAdminRights(), "", true),
		}, true
	case *tg.ChatParticipant:
		return domain.Member{
			UserID:        domain.UserID(p.UserID),
			InviterUserID: domain.UserID(p.InviterID),
			JoinedDate:    int32(p.Date),
			Status:        domain.RegularStatus(),
		}, true
	default:
		return domain.Member{}, false
	}
}

// basicGroupAdminRights is what an administrator of a basic group may do.
func basicGroupAdminRights() domain.AdminRights {
	r := domain.FullAdminRights()
	r.CanPromoteMembers = false
	r.CanPostMessages = false
	r.CanManageTopics = false
	return r
}

// convertChatParticipants returns the members, the creator and the
// participants version. A forbidden list yields ok=false.
func convertChatParticipants(p tg.ChatParticipantsClass) (members []domain.Member, creator domain.UserID, version int32, ok bool) {
	list, isList := p.(*tg.ChatParticipants)
	if !isList {
		return nil, 0, 0, false
	}
	for _, part := range list.Participants {
		m, ok := convertChatParticipant(part)
		if !ok {
			continue
		}
		if m.Status.Kind == domain.MemberCreator {
			creator = m.UserID
		}
		members = append(members, m)
	}
	return members, creator, int32(list.Version), true
}

func peerUserID(p tg.PeerClass) domain.UserID {
	if u, ok := p.(*tg.PeerUser); ok {
		return domain.UserID(u.UserID)
	}
	return 0
}

func convertChannelParticipant(p tg.ChannelParticipantClass) (domain.Member, bool) {
	switch p := p.(type) {
	case *tg.ChannelParticipant:
		return domain.Member{
			UserID:     domain.UserID(p.UserID),
			JoinedDate: int32(p.Date),
			Status:     domain.RegularStatus(),
		}, true
	case *tg.ChannelParticipantSelf:
		return domain.Member{
			UserID:        domain.UserID(p.UserID),
			InviterUserID: domain.UserID(p.InviterID),
			JoinedDate:    int32(p.Date),
			Status:        domain.RegularStatus(),
		}, true
	case *tg.ChannelParticipantCreator:
		r := convertAdminRights(p.AdminRights)
		return domain.Member{
			UserID: domain.UserID(p.UserID),
			Status: domain.CreatorStatus(p.Rank, r.IsAnonymous, true),
		}, true
	case *tg.ChannelParticipantAdmin:
		return domain.Member{
			UserID:        domain.UserID(p.UserID),
			InviterUserID: domain.UserID(p.PromotedBy),
			JoinedDate:    int32(p.Date),
			Status:        domain.AdministratorStatus(convertAdminRights(p.AdminRights), p.Rank, p.CanEdit),
		}, true
	case *tg.ChannelParticipantBanned:
		id := peerUserID(p.Peer)
		if id == 0 {
			return domain.Member{}, false
		}
		m := domain.Member{UserID: id, InviterUserID: domain.UserID(p.KickedBy), JoinedDate: int32(p.Date)}
		if p.BannedRights.ViewMessages {
			m.Status = domain.BannedStatus(int32(p.BannedRights.UntilDate))
		} else {
			m.Status = domain.RestrictedStatus(!p.Left, int32(p.BannedRights.UntilDate), convertBannedRights(p.BannedRights))
		}
		return m, true
	case *tg.ChannelParticipantLeft:
		id := peerUserID(p.Peer)
		if id == 0 {
			return domain.Member{}, false
		}
		return domain.Member{UserID: id, Status: domain.LeftStatus()}, true
	default:
		return domain.Member{}, false
	}
}

func memberFilterToWire(f MemberFilter) tg.ChannelParticipantsFilterClass {
	switch f {
	case MembersAdministrators:
		return &tg.ChannelParticipantsAdmins{}
	case MembersRestricted:
		return &tg.ChannelParticipantsBanned{}
	case MembersBanned:
		return &tg.ChannelParticipantsKicked{}
	case MembersBots:
		return &tg.ChannelParticipantsBots{}
	default:
		return &tg.ChannelParticipantsRecent{}
	}
}

// convertEncryptedChat converts a wire secret chat. selfID decides which
// side created it.
func convertEncryptedChat(c tg.EncryptedChatClass, selfID int64) (domain.SecretChat, bool) {
	side := func(adminID, participantID int64) (domain.UserID, bool) {
		if adminID == selfID {
			return domain.UserID(participantID), true
		}
		return domain.UserID(adminID), false
	}
	switch c := c.(type) {
	case *tg.EncryptedChatWaiting:
		user, out := side(c.AdminID, c.ParticipantID)
		return domain.SecretChat{
			ID:         domain.SecretChatID(c.ID),
			AccessHash: c.AccessHash,
			UserID:     user,
			State:      domain.SecretChatWaiting,
			IsOutbound: out,
			Date:       int32(c.Date),
		}, true
	case *tg.EncryptedChatRequested:
		user, out := side(c.AdminID, c.ParticipantID)
		return domain.SecretChat{
			ID:         domain.SecretChatID(c.ID),
			AccessHash: c.AccessHash,
			UserID:     user,
			State:      domain.SecretChatWaiting,
			IsOutbound: out,
			Date:       int32(c.Date),
		}, true
	case *tg.EncryptedChat:
		user, out := side(c.AdminID, c.ParticipantID)
		return domain.SecretChat{
			ID:         domain.SecretChatID(c.ID),
			AccessHash: c.AccessHash,
			UserID:     user,
			State:      domain.SecretChatActive,
			IsOutbound: out,
			Date:       int32(c.Date),
		}, true
	case *tg.EncryptedChatDiscarded:
		return domain.SecretChat{ID: domain.SecretChatID(c.ID), State: domain.SecretChatClosed}, true
	default:
		return domain.SecretChat{}, false
	}
}

func convertUserFull(f *tg.UserFull) domain.AccountFull {
	full := domain.AccountFull{
		About:             f.About,
		Blocked:           f.Blocked,
		CommonChatCount:   int32(f.CommonChatsCount),
		PinnedMessageID:   int32(f.PinnedMsgID),
		CanCall:           f.PhoneCallsAvailable,
		HasPrivateCalls:   f.PhoneCallsPrivate,
		VideoCallsAllowed: f.VideoCallsAvailable,
	}
	if bi, ok := f.GetBotInfo(); ok {
		full.BotDescription = bi.Description
		for _, c := range bi.Commands {
			full.BotCommands = append(full.BotCommands, domain.BotCommand{Command: c.Command, Description: c.Description})
		}
	}
	return full
}

func inviteLink(inv tg.ExportedChatInviteClass) string {
	if e, ok := inv.(*tg.ChatInviteExported); ok {
		return e.Link
	}
	return ""
}

func convertChatFull(f *tg.ChatFull) domain.BasicGroupFull {
	full := domain.BasicGroupFull{
		Description:     f.About,
		PinnedMessageID: int32(f.PinnedMsgID),
	}
	if inv, ok := f.GetExportedInvite(); ok {
		full.InviteLink = inviteLink(inv)
	}
	if members, creator, version, ok := convertChatParticipants(f.Participants); ok {
		full.Members = members
		full.CreatorUserID = creator
		full.Version = version
	}
	return full
}

func convertChannelFull(f *tg.ChannelFull) domain.ChannelFull {
	full := domain.ChannelFull{
		Description:        f.About,
		CanGetParticipants: f.CanViewParticipants,
		CanSetUsername:     f.CanSetUsername,
		CanSetStickerSet:   f.CanSetStickers,
		IsAllHistoryHidden: f.HiddenPrehistory,
		Version:            int32(f.Pts),
	}
	if n, ok := f.GetParticipantsCount(); ok {
		full.ParticipantCount = int32(n)
	}
	if n, ok := f.GetAdminsCount(); ok {
		full.AdminCount = int32(n)
	}
	if n, ok := f.GetBannedCount(); ok {
		full.RestrictedCount = int32(n)
	}
	if n, ok := f.GetKickedCount(); ok {
		full.BannedCount = int32(n)
	}
	if inv, ok := f.GetExportedInvite(); ok {
		full.InviteLink = inviteLink(inv)
	}
	if s, ok := f.GetStickerset(); ok {
		full.StickerSetID = s.ID
	}
	if id, ok := f.GetLinkedChatID(); ok {
		full.LinkedChannelID = domain.ChannelID(id)
	}
	if n, ok := f.GetSlowmodeSeconds(); ok {
		full.SlowModeDelay = int32(n)
	}
	if id, ok := f.GetMigratedFromChatID(); ok {
		full.MigratedFromChatID = domain.ChatID(id)
	}
	if n, ok := f.GetMigratedFromMaxID(); ok {
		full.MigratedFromMaxMessageID = int32(n)
	}
	return full
}
