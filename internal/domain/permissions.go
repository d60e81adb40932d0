package domain

// Permissions is the set of actions a non-administrator member may take.
// It is used both as a chat-wide default and as a per-member restriction.
type Permissions struct {
	CanSendMessages       bool
	CanSendMedia          bool
	CanSendPolls          bool
	CanSendOther          bool
	CanAddWebPagePreviews bool
	CanChangeInfo         bool
	CanInviteUsers        bool
	CanPinMessages        bool
	CanManageTopics       bool
}

// AllPermissions returns a permission set with every action allowed.
func AllPermissions() Permissions {
	return Permissions{
		CanSendMessages:       true,
		CanSendMedia:          true,
		CanSendPolls:          true,
		CanSendOther:          true,
		CanAddWebPagePreviews: true,
		CanChangeInfo:         true,
		CanInviteUsers:        true,
		CanPinMessages:        true,
		CanManageTopics:       true,
	}
}

// Intersect returns the permissions allowed by both p and o.
func (p Permissions) Intersect(o Permissions) Permissions {
	return Permissions{
		CanSendMessages:       p.CanSendMessages && o.CanSendMessages,
		CanSendMedia:          p.CanSendMedia && o.CanSendMedia,
		CanSendPolls:          p.CanSendPolls && o.CanSendPolls,
		CanSendOther:          p.CanSendOther && o.CanSendOther,
		CanAddWebPagePreviews: p.CanAddWebPagePreviews && o.CanAddWebPagePreviews,
		CanChangeInfo:         p.CanChangeInfo && o.CanChangeInfo,
		CanInviteUsers:        p.CanInviteUsers && o.CanInviteUsers,
		CanPinMessages:        p.CanPinMessages && o.CanPinMessages,
		CanManageTopics:       p.CanManageTopics && o.CanManageTopics,
	}
}

// AdminRights is the set of administrator privileges.
type AdminRights struct {
	CanManageChat     bool
	CanChangeInfo     bool
	CanPostMessages   bool
	CanEditMessages   bool
	CanDeleteMessages bool
	CanBanUsers       bool
	CanInviteUsers    bool
	CanPinMessages    bool
	CanPromoteMembers bool
	CanManageCalls    bool
	CanManageTopics   bool
	IsAnonymous       bool
}

// FullAdminRights returns the rights held by a creator.
func FullAdminRights() AdminRights {
	return AdminRights{
		CanManageChat:     true,
		CanChangeInfo:     true,
		CanPostMessages:   true,
		CanEditMessages:   true,
		CanDeleteMessages: true,
		CanBanUsers:       true,
		CanInviteUsers:    true,
		CanPinMessages:    true,
		CanPromoteMembers: true,
		CanManageCalls:    true,
		CanManageTopics:   true,
	}
}

// IsEmpty reports whether no right is granted.
func (r AdminRights) IsEmpty() bool {
	return r == AdminRights{}
}
