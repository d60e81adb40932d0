package persist

import (
	"time"

	"github.com/go-faster/errors"

	"github.com/danhigham/tgcache/internal/domain"
)

// EncodeAccount serializes an account record.
func EncodeAccount(a *domain.Account) []byte {
	var f flags
	f.set(0, a.IsBot)
	f.set(1, a.IsSelf)
	f.set(2, a.IsDeleted)
	f.set(3, a.IsVerified)
	f.set(4, a.IsPremium)
	f.set(5, a.IsScam)
	f.set(6, a.IsFake)
	f.set(7, a.IsSupport)
	f.set(8, a.IsRestricted)
	f.set(9, a.IsMin)
	f.set(10, a.Username != "")
	f.set(11, a.Phone != "")
	f.set(12, !a.Photo.IsEmpty())
	f.set(13, a.RestrictionReason != "")
	f.set(14, a.LanguageCode != "")
	f.set(15, a.BotCanJoinGroups)
	f.set(16, a.BotReadsAllMessage)
	f.set(17, a.BotInlinePlaceholder != "")

	e := newEncoder(accountLayout)
	e.b.PutUint32(uint32(f))
	e.b.PutLong(int64(a.ID))
	e.b.PutLong(a.AccessHash)
	e.b.PutString(a.FirstName)
	e.b.PutString(a.LastName)
	if f.has(10) {
		e.b.PutString(a.Username)
	}
	if f.has(11) {
		e.b.PutString(a.Phone)
	}
	if f.has(12) {
		e.photo(a.Photo)
	}
	e.b.PutInt32(a.BotInfoVersion)
	e.b.PutInt32(int32(a.Outbound))
	e.b.PutInt32(int32(a.Inbound))
	e.b.PutInt32(int32(a.Presence.Kind))
	e.b.PutInt32(a.Presence.Expires)
	e.b.PutInt32(a.Presence.WasOnline)
	if f.has(13) {
		e.b.PutString(a.RestrictionReason)
	}
	// Layout 2.
	if f.has(14) {
		e.b.PutString(a.LanguageCode)
	}
	// Layout 3.
	if f.has(17) {
		e.b.PutString(a.BotInlinePlaceholder)
	}
	e.b.PutInt32(a.CacheVersion)
	return e.bytes()
}

// DecodeAccount parses a blob written by EncodeAccount or an earlier layout.
func DecodeAccount(data []byte) (domain.Account, error) {
	d, err := newDecoder(data, accountLayout)
	if err != nil {
		return domain.Account{}, err
	}
	f := flags(d.uint32())
	a := domain.Account{
		IsBot:              f.has(0),
		IsSelf:             f.has(1),
		IsDeleted:          f.has(2),
		IsVerified:         f.has(3),
		IsPremium:          f.has(4),
		IsScam:             f.has(5),
		IsFake:             f.has(6),
		IsSupport:          f.has(7),
		IsRestricted:       f.has(8),
		IsMin:              f.has(9),
		BotCanJoinGroups:   f.has(15),
		BotReadsAllMessage: f.has(16),
	}
	a.ID = domain.UserID(d.long())
	a.AccessHash = d.long()
	a.FirstName = d.string()
	a.LastName = d.string()
	if f.has(10) {
		a.Username = d.string()
	}
	if f.has(11) {
		a.Phone = d.string()
	}
	if f.has(12) {
		a.Photo = d.photo()
	}
	a.BotInfoVersion = d.int32()
	a.Outbound = domain.LinkState(d.int32())
	a.Inbound = domain.LinkState(d.int32())
	a.Presence.Kind = domain.PresenceKind(d.int32())
	a.Presence.Expires = d.int32()
	a.Presence.WasOnline = d.int32()
	if f.has(13) {
		a.RestrictionReason = d.string()
	}
	if d.layout >= 2 && f.has(14) {
		a.LanguageCode = d.string()
	}
	if d.layout >= 3 && f.has(17) {
		a.BotInlinePlaceholder = d.string()
	}
	if d.layout >= 2 {
		a.CacheVersion = d.int32()
	}
	if err := d.finish("account"); err != nil {
		return domain.Account{}, err
	}
	return a, nil
}

// EncodeAccountFull serializes the details of an account.
func EncodeAccountFull(full *domain.AccountFull) []byte {
	var f flags
	f.set(0, full.Blocked)
	f.set(1, full.CanCall)
	f.set(2, full.HasPrivateCalls)
	f.set(3, full.VideoCallsAllowed)
	f.set(4, full.About != "")
	f.set(5, full.BotDescription != "")
	f.set(6, len(full.BotCommands) > 0)

	e := newEncoder(accountFullLayout)
	e.b.PutUint32(uint32(f))
	if f.has(4) {
		e.b.PutString(full.About)
	}
	e.b.PutInt32(full.CommonChatCount)
	e.b.PutInt32(full.PinnedMessageID)
	if f.has(5) {
		e.b.PutString(full.BotDescription)
	}
	if f.has(6) {
		e.b.PutInt(len(full.BotCommands))
		for _, c := range full.BotCommands {
			e.b.PutString(c.Command)
			e.b.PutString(c.Description)
		}
	}
	e.b.PutLong(full.ExpiresAt.Unix())
	return e.bytes()
}

func DecodeAccountFull(data []byte) (domain.AccountFull, error) {
	d, err := newDecoder(data, accountFullLayout)
	if err != nil {
		return domain.AccountFull{}, err
	}
	f := flags(d.uint32())
	full := domain.AccountFull{
		Blocked:           f.has(0),
		CanCall:           f.has(1),
		HasPrivateCalls:   f.has(2),
		VideoCallsAllowed: f.has(3),
	}
	if f.has(4) {
		full.About = d.string()
	}
	full.CommonChatCount = d.int32()
	full.PinnedMessageID = d.int32()
	if f.has(5) {
		full.BotDescription = d.string()
	}
	if f.has(6) {
		n := int(d.int32())
		for i := 0; i < n && d.err == nil; i++ {
			full.BotCommands = append(full.BotCommands, domain.BotCommand{
				Command:     d.string(),
				Description: d.string(),
			})
		}
	}
	if d.layout >= 2 {
		full.ExpiresAt = time.Unix(d.long(), 0)
	}
	if err := d.finish("account full"); err != nil {
		return domain.AccountFull{}, err
	}
	return full, nil
}

// EncodeBasicGroup serializes a basic group record.
func EncodeBasicGroup(g *domain.BasicGroup) []byte {
	var f flags
	f.set(0, g.IsActive)
	f.set(1, g.IsCallActive)
	f.set(2, !g.Photo.IsEmpty())
	f.set(3, g.MigratedTo != 0)

	e := newEncoder(basicGroupLayout)
	e.b.PutUint32(uint32(f))
	e.b.PutLong(int64(g.ID))
	e.b.PutString(g.Title)
	if f.has(2) {
		e.photo(g.Photo)
	}
	e.b.PutInt32(g.ParticipantCount)
	e.b.PutInt32(g.Date)
	e.memberStatus(g.Status)
	e.b.PutUint32(permissionBits(g.DefaultPermissions))
	e.b.PutInt32(g.Version)
	e.b.PutInt32(g.DefaultPermissionsVersion)
	e.b.PutInt32(g.PinnedMessageVersion)
	if f.has(3) {
		e.b.PutLong(int64(g.MigratedTo))
	}
	e.b.PutInt32(g.CacheVersion)
	return e.bytes()
}

func DecodeBasicGroup(data []byte) (domain.BasicGroup, error) {
	d, err := newDecoder(data, basicGroupLayout)
	if err != nil {
		return domain.BasicGroup{}, err
	}
	f := flags(d.uint32())
	g := domain.BasicGroup{
		IsActive:     f.has(0),
		IsCallActive: f.has(1),
	}
	g.ID = domain.ChatID(d.long())
	g.Title = d.string()
	if f.has(2) {
		g.Photo = d.photo()
	}
	g.ParticipantCount = d.int32()
	g.Date = d.int32()
	g.Status = d.memberStatus()
	g.DefaultPermissions = permissionsFromBits(d.uint32())
	g.Version = d.int32()
	if d.layout >= 2 {
		g.DefaultPermissionsVersion = d.int32()
		g.PinnedMessageVersion = d.int32()
	} else {
		// Layout 1 kept no separate counters; force a refresh of both.
		g.DefaultPermissionsVersion = -1
		g.PinnedMessageVersion = -1
	}
	if f.has(3) {
		g.MigratedTo = domain.ChannelID(d.long())
	}
	if d.layout >= 2 {
		g.CacheVersion = d.int32()
	}
	if err := d.finish("basic group"); err != nil {
		return domain.BasicGroup{}, err
	}
	return g, nil
}

// EncodeBasicGroupFull serializes the details of a basic group.
func EncodeBasicGroupFull(full *domain.BasicGroupFull) []byte {
	var f flags
	f.set(0, full.Description != "")
	f.set(1, full.InviteLink != "")

	e := newEncoder(basicGroupFullLayout)
	e.b.PutUint32(uint32(f))
	if f.has(0) {
		e.b.PutString(full.Description)
	}
	e.b.PutLong(int64(full.CreatorUserID))
	e.members(full.Members)
	if f.has(1) {
		e.b.PutString(full.InviteLink)
	}
	e.b.PutInt32(full.PinnedMessageID)
	e.b.PutInt32(full.Version)
	e.b.PutLong(full.ExpiresAt.Unix())
	return e.bytes()
}

func DecodeBasicGroupFull(data []byte) (domain.BasicGroupFull, error) {
	d, err := newDecoder(data, basicGroupFullLayout)
	if err != nil {
		return domain.BasicGroupFull{}, err
	}
	f := flags(d.uint32())
	var full domain.BasicGroupFull
	if f.has(0) {
		full.Description = d.string()
	}
	full.CreatorUserID = domain.UserID(d.long())
	full.Members = d.members()
	if f.has(1) {
		full.InviteLink = d.string()
	}
	full.PinnedMessageID = d.int32()
	full.Version = d.int32()
	full.ExpiresAt = time.Unix(d.long(), 0)
	if err := d.finish("basic group full"); err != nil {
		return domain.BasicGroupFull{}, err
	}
	return full, nil
}

// EncodeChannel serializes a channel record.
func EncodeChannel(c *domain.Channel) []byte {
	var f flags
	f.set(0, c.IsBroadcast)
	f.set(1, c.HasLinkedChat)
	f.set(2, c.HasLocation)
	f.set(3, c.SignMessages)
	f.set(4, c.IsSlowModeEnabled)
	f.set(5, c.IsVerified)
	f.set(6, c.IsScam)
	f.set(7, c.IsFake)
	f.set(8, c.IsRestricted)
	f.set(9, c.IsMin)
	f.set(10, c.Username != "")
	f.set(11, !c.Photo.IsEmpty())
	f.set(12, c.RestrictionReason != "")

	e := newEncoder(channelLayout)
	e.b.PutUint32(uint32(f))
	e.b.PutLong(int64(c.ID))
	e.b.PutLong(c.AccessHash)
	e.b.PutString(c.Title)
	if f.has(10) {
		e.b.PutString(c.Username)
	}
	if f.has(11) {
		e.photo(c.Photo)
	}
	e.b.PutInt32(c.Date)
	e.memberStatus(c.Status)
	e.b.PutUint32(permissionBits(c.DefaultPermissions))
	e.b.PutInt32(c.ParticipantCount)
	e.b.PutInt32(c.Version)
	if f.has(12) {
		e.b.PutString(c.RestrictionReason)
	}
	e.b.PutInt32(c.CacheVersion)
	return e.bytes()
}

func DecodeChannel(data []byte) (domain.Channel, error) {
	d, err := newDecoder(data, channelLayout)
	if err != nil {
		return domain.Channel{}, err
	}
	f := flags(d.uint32())
	c := domain.Channel{
		IsBroadcast:       f.has(0),
		HasLinkedChat:     f.has(1),
		HasLocation:       f.has(2),
		SignMessages:      f.has(3),
		IsSlowModeEnabled: f.has(4),
		IsVerified:        f.has(5),
		IsScam:            f.has(6),
		IsFake:            f.has(7),
		IsRestricted:      f.has(8),
		IsMin:             f.has(9),
	}
	c.ID = domain.ChannelID(d.long())
	c.AccessHash = d.long()
	c.Title = d.string()
	if f.has(10) {
		c.Username = d.string()
	}
	if f.has(11) {
		c.Photo = d.photo()
	}
	c.Date = d.int32()
	c.Status = d.memberStatus()
	c.DefaultPermissions = permissionsFromBits(d.uint32())
	c.ParticipantCount = d.int32()
	if d.layout >= 2 {
		c.Version = d.int32()
	}
	if f.has(12) {
		c.RestrictionReason = d.string()
	}
	if d.layout >= 2 {
		c.CacheVersion = d.int32()
	}
	if err := d.finish("channel"); err != nil {
		return domain.Channel{}, err
	}
	return c, nil
}

// EncodeChannelFull serializes the details of a channel. The cached member
// list is not persisted.
func EncodeChannelFull(full *domain.ChannelFull) []byte {
	var f flags
	f.set(0, full.CanGetParticipants)
	f.set(1, full.CanSetUsername)
	f.set(2, full.CanSetStickerSet)
	f.set(3, full.IsAllHistoryHidden)
	f.set(4, full.Description != "")
	f.set(5, full.InviteLink != "")
	f.set(6, full.StickerSetID != 0)
	f.set(7, full.LinkedChannelID != 0)
	f.set(8, full.MigratedFromChatID != 0)

	e := newEncoder(channelFullLayout)
	e.b.PutUint32(uint32(f))
	if f.has(4) {
		e.b.PutString(full.Description)
	}
	e.b.PutInt32(full.ParticipantCount)
	e.b.PutInt32(full.AdminCount)
	e.b.PutInt32(full.RestrictedCount)
	e.b.PutInt32(full.BannedCount)
	if f.has(5) {
		e.b.PutString(full.InviteLink)
	}
	if f.has(6) {
		e.b.PutLong(full.StickerSetID)
	}
	if f.has(7) {
		e.b.PutLong(int64(full.LinkedChannelID))
	}
	if f.has(8) {
		e.b.PutLong(int64(full.MigratedFromChatID))
		e.b.PutInt32(full.MigratedFromMaxMessageID)
	}
	e.b.PutInt32(full.SlowModeDelay)
	e.b.PutInt32(full.Version)
	e.b.PutLong(full.ExpiresAt.Unix())
	return e.bytes()
}

func DecodeChannelFull(data []byte) (domain.ChannelFull, error) {
	d, err := newDecoder(data, channelFullLayout)
	if err != nil {
		return domain.ChannelFull{}, err
	}
	f := flags(d.uint32())
	full := domain.ChannelFull{
		CanGetParticipants: f.has(0),
		CanSetUsername:     f.has(1),
		CanSetStickerSet:   f.has(2),
		IsAllHistoryHidden: f.has(3),
	}
	if f.has(4) {
		full.Description = d.string()
	}
	full.ParticipantCount = d.int32()
	full.AdminCount = d.int32()
	full.RestrictedCount = d.int32()
	full.BannedCount = d.int32()
	if f.has(5) {
		full.InviteLink = d.string()
	}
	if f.has(6) {
		full.StickerSetID = d.long()
	}
	if f.has(7) {
		full.LinkedChannelID = domain.ChannelID(d.long())
	}
	if f.has(8) {
		full.MigratedFromChatID = domain.ChatID(d.long())
		full.MigratedFromMaxMessageID = d.int32()
	}
	full.SlowModeDelay = d.int32()
	if d.layout >= 2 {
		full.Version = d.int32()
	}
	full.ExpiresAt = time.Unix(d.long(), 0)
	if err := d.finish("channel full"); err != nil {
		return domain.ChannelFull{}, err
	}
	return full, nil
}

// EncodeSecretChat serializes a secret chat record.
func EncodeSecretChat(s *domain.SecretChat) []byte {
	var f flags
	f.set(0, s.IsOutbound)
	f.set(1, len(s.KeyHash) > 0)

	e := newEncoder(secretChatLayout)
	e.b.PutUint32(uint32(f))
	e.b.PutInt32(int32(s.ID))
	e.b.PutLong(s.AccessHash)
	e.b.PutLong(int64(s.UserID))
	e.b.PutInt32(int32(s.State))
	e.b.PutInt32(s.Date)
	e.b.PutInt32(s.TTL)
	e.b.PutInt32(s.Layer)
	if f.has(1) {
		e.b.PutBytes(s.KeyHash)
	}
	return e.bytes()
}

func DecodeSecretChat(data []byte) (domain.SecretChat, error) {
	d, err := newDecoder(data, secretChatLayout)
	if err != nil {
		return domain.SecretChat{}, err
	}
	f := flags(d.uint32())
	s := domain.SecretChat{IsOutbound: f.has(0)}
	s.ID = domain.SecretChatID(d.int32())
	s.AccessHash = d.long()
	s.UserID = domain.UserID(d.long())
	s.State = domain.SecretChatState(d.int32())
	s.Date = d.int32()
	s.TTL = d.int32()
	s.Layer = d.int32()
	if f.has(1) {
		s.KeyHash = d.raw()
	}
	if d.err == nil && s.State > domain.SecretChatClosed {
		d.err = errors.Errorf("unknown state %d", s.State)
	}
	if err := d.finish("secret chat"); err != nil {
		return domain.SecretChat{}, err
	}
	return s, nil
}
