package domain

import "time"

// MemberStatusKind is the shape of a membership status.
type MemberStatusKind uint8

const (
	MemberLeft MemberStatusKind = iota
	MemberCreator
	MemberAdministrator
	MemberRegular
	MemberRestricted
	MemberBanned
)

func (k MemberStatusKind) String() string {
	switch k {
	case MemberCreator:
		return "creator"
	case MemberAdministrator:
		return "administrator"
	case MemberRegular:
		return "member"
	case MemberRestricted:
		return "restricted"
	case MemberBanned:
		return "banned"
	default:
		return "left"
	}
}

// MemberStatus is the status of an account inside a basic group or channel.
//
// Fields are meaningful per kind:
//   - Creator: Rank, IsAnonymous, IsMember
//   - Administrator: Rights, Rank, CanBeEdited
//   - Restricted: IsMember, Restrictions, Until
//   - Banned: Until
//
// Until is a unix timestamp; zero means forever.
type MemberStatus struct {
	Kind         MemberStatusKind
	Rank         string
	IsAnonymous  bool
	IsMember     bool
	CanBeEdited  bool
	Rights       AdminRights
	Restrictions Permissions
	Until        int32
}

func CreatorStatus(rank string, isAnonymous, isMember bool) MemberStatus {
	return MemberStatus{Kind: MemberCreator, Rank: rank, IsAnonymous: isAnonymous, IsMember: isMember}
}

func AdministratorStatus(rights AdminRights, rank string, canBeEdited bool) MemberStatus {
	return MemberStatus{Kind: MemberAdministrator, Rights: rights, Rank: rank, CanBeEdited: canBeEdited}
}

func RegularStatus() MemberStatus {
	return MemberStatus{Kind: MemberRegular}
}

func RestrictedStatus(isMember bool, until int32, restrictions Permissions) MemberStatus {
	return MemberStatus{Kind: MemberRestricted, IsMember: isMember, Until: until, Restrictions: restrictions}
}

func LeftStatus() MemberStatus {
	return MemberStatus{Kind: MemberLeft}
}

func BannedStatus(until int32) MemberStatus {
	return MemberStatus{Kind: MemberBanned, Until: until}
}

// IsMemberNow reports whether the status counts towards the member count.
func (s MemberStatus) IsMemberNow() bool {
	switch s.Kind {
	case MemberCreator, MemberRestricted:
		return s.IsMember
	case MemberAdministrator, MemberRegular:
		return true
	default:
		return false
	}
}

// IsAdministrator reports whether the status grants any administrator rights.
func (s MemberStatus) IsAdministrator() bool {
	return s.Kind == MemberCreator || s.Kind == MemberAdministrator
}

// AdminRights returns the effective administrator rights.
func (s MemberStatus) AdminRights() AdminRights {
	switch s.Kind {
	case MemberCreator:
		r := FullAdminRights()
		r.IsAnonymous = s.IsAnonymous
		return r
	case MemberAdministrator:
		return s.Rights
	default:
		return AdminRights{}
	}
}

// CanInviteUsers reports whether the holder may add members.
func (s MemberStatus) CanInviteUsers() bool {
	return s.AdminRights().CanInviteUsers
}

// CanRestrictMembers reports whether the holder may ban or restrict others.
func (s MemberStatus) CanRestrictMembers() bool {
	return s.AdminRights().CanBanUsers
}

// CanPromoteMembers reports whether the holder may appoint administrators.
func (s MemberStatus) CanPromoteMembers() bool {
	return s.AdminRights().CanPromoteMembers
}

// CanChangeInfo reports whether the holder may rename the chat or change
// its description and photo, given the chat's default permissions.
func (s MemberStatus) CanChangeInfo(defaults Permissions) bool {
	switch s.Kind {
	case MemberCreator, MemberAdministrator:
		return s.AdminRights().CanChangeInfo
	case MemberRegular:
		return defaults.CanChangeInfo
	case MemberRestricted:
		return s.IsMember && defaults.CanChangeInfo && s.Restrictions.CanChangeInfo
	default:
		return false
	}
}

// ExpiresAt returns the moment a restricted or banned status lapses, or the
// zero time if it never does.
func (s MemberStatus) ExpiresAt() time.Time {
	if (s.Kind == MemberRestricted || s.Kind == MemberBanned) && s.Until > 0 {
		return time.Unix(int64(s.Until), 0)
	}
	return time.Time{}
}

// Updated returns the status as of now: restricted and banned statuses
// whose Until has passed decay to a plain member or to left.
func (s MemberStatus) Updated(now time.Time) MemberStatus {
	at := s.ExpiresAt()
	if at.IsZero() || now.Before(at) {
		return s
	}
	if s.Kind == MemberRestricted && s.IsMember {
		return RegularStatus()
	}
	return LeftStatus()
}

func (s MemberStatus) String() string {
	return s.Kind.String()
}

// Member is one entry of a membership list.
type Member struct {
	UserID        UserID
	InviterUserID UserID
	JoinedDate    int32
	Status        MemberStatus
}
