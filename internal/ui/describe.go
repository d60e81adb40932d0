package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/domain"
)

// markdown accumulates a detail page.
type markdown struct {
	b    strings.Builder
	rows int
}

func (md *markdown) heading(s string) {
	md.endTable()
	fmt.Fprintf(&md.b, "# %s\n\n", escape(s))
}

func (md *markdown) section(s string) {
	md.endTable()
	fmt.Fprintf(&md.b, "## %s\n\n", s)
}

func (md *markdown) paragraph(s string) {
	md.endTable()
	if s = strings.TrimSpace(s); s != "" {
		md.b.WriteString(s + "\n\n")
	}
}

// row adds a field to the current table, skipping empty values.
func (md *markdown) row(field string, value any) {
	v := fmt.Sprint(value)
	if v == "" || v == "0" || v == "false" {
		return
	}
	if md.rows == 0 {
		md.b.WriteString("| Field | Value |\n|---|---|\n")
	}
	fmt.Fprintf(&md.b, "| %s | %s |\n", field, escape(v))
	md.rows++
}

func (md *markdown) endTable() {
	if md.rows > 0 {
		md.b.WriteString("\n")
		md.rows = 0
	}
}

func (md *markdown) String() string {
	md.endTable()
	return md.b.String()
}

func escape(s string) string {
	return strings.NewReplacer("|", `\|`, "\n", " ").Replace(s)
}

func unix(ts int32) string {
	if ts == 0 {
		return ""
	}
	return time.Unix(int64(ts), 0).UTC().Format("2006-01-02 15:04")
}

func statusText(s domain.MemberStatus) string {
	switch s.Kind {
	case domain.MemberCreator, domain.MemberAdministrator:
		if s.Rank != "" {
			return fmt.Sprintf("%s (%s)", s.Kind, s.Rank)
		}
	case domain.MemberRestricted, domain.MemberBanned:
		if s.Until > 0 {
			return fmt.Sprintf("%s until %s", s.Kind, unix(s.Until))
		}
	}
	return s.Kind.String()
}

func presenceText(p domain.Presence) string {
	switch p.Kind {
	case domain.PresenceOnline:
		return "online until " + unix(p.Expires)
	case domain.PresenceOffline:
		return "last seen " + unix(p.WasOnline)
	default:
		return p.String()
	}
}

func describeMembers(md *markdown, members []domain.Member, names func(domain.UserID) string) {
	if len(members) == 0 {
		return
	}
	md.section(fmt.Sprintf("Members (%d)", len(members)))
	for _, m := range members {
		md.row(names(m.UserID), statusText(m.Status))
	}
}

// describeAccount renders an account and, when known, its full record.
func describeAccount(a domain.Account, full *domain.AccountFull) string {
	var md markdown
	md.heading(a.DisplayName())
	md.row("ID", a.ID)
	if a.Username != "" {
		md.row("Username", "@"+a.Username)
	}
	if a.Phone != "" {
		md.row("Phone", "+"+a.Phone)
	}
	md.row("Presence", presenceText(a.Presence))
	md.row("My link", a.Outbound)
	md.row("Their link", a.Inbound)
	md.row("Bot", a.IsBot)
	md.row("Verified", a.IsVerified)
	md.row("Premium", a.IsPremium)
	md.row("Restricted", a.RestrictionReason)
	md.row("Self", a.IsSelf)
	if full == nil {
		return md.String()
	}
	md.section("About")
	md.paragraph(full.About)
	md.paragraph(full.BotDescription)
	md.row("Blocked", full.Blocked)
	md.row("Common chats", full.CommonChatCount)
	md.row("Can call", full.CanCall)
	for _, c := range full.BotCommands {
		md.row("/"+c.Command, c.Description)
	}
	return md.String()
}

func describeBasicGroup(g domain.BasicGroup, full *domain.BasicGroupFull, names func(domain.UserID) string) string {
	var md markdown
	md.heading(g.Title)
	md.row("ID", g.ID)
	md.row("Members", g.ParticipantCount)
	md.row("My status", statusText(g.Status))
	md.row("Version", g.Version)
	md.row("Created", unix(g.Date))
	if g.IsMigrated() {
		md.row("Migrated to", domain.ChannelRef(g.MigratedTo))
	}
	md.row("Deactivated", !g.IsActive)
	if full == nil {
		return md.String()
	}
	md.section("Description")
	md.paragraph(full.Description)
	md.row("Invite link", full.InviteLink)
	if full.CreatorUserID != 0 {
		md.row("Creator", names(full.CreatorUserID))
	}
	describeMembers(&md, full.Members, names)
	return md.String()
}

func describeChannel(c domain.Channel, full *domain.ChannelFull, names func(domain.UserID) string) string {
	var md markdown
	md.heading(c.Title)
	kind := "supergroup"
	if c.IsBroadcast {
		kind = "broadcast channel"
	}
	md.row("ID", c.ID)
	md.row("Kind", kind)
	if c.Username != "" {
		md.row("Username", "@"+c.Username)
	}
	md.row("Members", c.ParticipantCount)
	md.row("My status", statusText(c.Status))
	md.row("Verified", c.IsVerified)
	md.row("Restricted", c.RestrictionReason)
	md.row("Slow mode", c.IsSlowModeEnabled)
	if full == nil {
		return md.String()
	}
	md.section("Description")
	md.paragraph(full.Description)
	md.row("Members", full.ParticipantCount)
	md.row("Administrators", full.AdminCount)
	md.row("Restricted", full.RestrictedCount)
	md.row("Banned", full.BannedCount)
	md.row("Invite link", full.InviteLink)
	if full.LinkedChannelID != 0 {
		md.row("Linked chat", domain.ChannelRef(full.LinkedChannelID))
	}
	if full.SlowModeDelay > 0 {
		md.row("Slow mode delay", time.Duration(full.SlowModeDelay)*time.Second)
	}
	describeMembers(&md, full.Members, names)
	return md.String()
}

func describeSecretChat(sc domain.SecretChat, names func(domain.UserID) string) string {
	var md markdown
	md.heading("Secret chat")
	md.row("ID", sc.ID)
	md.row("With", names(sc.UserID))
	md.row("State", sc.State)
	md.row("Outbound", sc.IsOutbound)
	md.row("Layer", sc.Layer)
	if sc.TTL > 0 {
		md.row("Self-destruct", time.Duration(sc.TTL)*time.Second)
	}
	return md.String()
}

// nameLookup resolves account ids against a snapshot.
func nameLookup(s cache.Snapshot) func(domain.UserID) string {
	names := make(map[domain.UserID]string, len(s.Accounts))
	for _, a := range s.Accounts {
		names[a.ID] = a.DisplayName()
	}
	return func(id domain.UserID) string {
		if n, ok := names[id]; ok {
			return n
		}
		return domain.AccountRef(id).String()
	}
}
