package notify

import (
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/danhigham/tgcache/internal/domain"
)

// Sink receives published updates.
type Sink interface {
	Publish(Update)
}

type shape uint8

const (
	shapeAccount shape = iota
	shapeAccountStatus
	shapeAccountFull
	shapeBasicGroup
	shapeBasicGroupFull
	shapeChannel
	shapeChannelFull
	shapeSecretChat
	shapeContacts
)

type shapeKey struct {
	ref   domain.Ref
	shape shape
}

// Fields that never reach the client and so never justify an update.
var hidden = []cmp.Option{
	cmpopts.IgnoreFields(domain.Account{}, "AccessHash", "Presence", "CacheVersion", "IsMin"),
	cmpopts.IgnoreFields(domain.AccountFull{}, "ExpiresAt"),
	cmpopts.IgnoreFields(domain.BasicGroup{}, "Version", "DefaultPermissionsVersion", "PinnedMessageVersion", "CacheVersion"),
	cmpopts.IgnoreFields(domain.BasicGroupFull{}, "Version", "ExpiresAt"),
	cmpopts.IgnoreFields(domain.Channel{}, "AccessHash", "Version", "CacheVersion", "IsMin"),
	cmpopts.IgnoreFields(domain.ChannelFull{}, "Version", "ExpiresAt", "Members"),
	cmpopts.IgnoreFields(domain.SecretChat{}, "AccessHash", "KeyHash"),
	cmpopts.EquateEmpty(),
}

// Notifier remembers the last published shape of every entity and publishes
// only when the shape changes. It is not safe for concurrent use.
type Notifier struct {
	sink Sink
	last map[shapeKey]any
	sent int
}

func New(sink Sink) *Notifier {
	return &Notifier{sink: sink, last: make(map[shapeKey]any)}
}

func (n *Notifier) publish(key shapeKey, view any, u Update) bool {
	if prev, ok := n.last[key]; ok && cmp.Equal(prev, view, hidden...) {
		return false
	}
	n.last[key] = view
	n.sent++
	n.sink.Publish(u)
	return true
}

// Account publishes AccountUpdated if the visible shape of a changed.
func (n *Notifier) Account(a *domain.Account) bool {
	v := *a
	return n.publish(shapeKey{domain.AccountRef(a.ID), shapeAccount}, v, AccountUpdated{Account: v})
}

// AccountStatus publishes AccountStatusUpdated if the presence changed.
func (n *Notifier) AccountStatus(id domain.UserID, p domain.Presence) bool {
	return n.publish(shapeKey{domain.AccountRef(id), shapeAccountStatus}, p, AccountStatusUpdated{UserID: id, Presence: p})
}

func (n *Notifier) AccountFull(id domain.UserID, full *domain.AccountFull) bool {
	v := *full
	return n.publish(shapeKey{domain.AccountRef(id), shapeAccountFull}, v, AccountFullUpdated{UserID: id, Full: v})
}

func (n *Notifier) BasicGroup(g *domain.BasicGroup) bool {
	v := *g
	return n.publish(shapeKey{domain.BasicGroupRef(g.ID), shapeBasicGroup}, v, BasicGroupUpdated{Group: v})
}

func (n *Notifier) BasicGroupFull(id domain.ChatID, full *domain.BasicGroupFull) bool {
	v := *full
	v.Members = append([]domain.Member(nil), full.Members...)
	return n.publish(shapeKey{domain.BasicGroupRef(id), shapeBasicGroupFull}, v, BasicGroupFullUpdated{ChatID: id, Full: v})
}

func (n *Notifier) Channel(c *domain.Channel) bool {
	v := *c
	return n.publish(shapeKey{domain.ChannelRef(c.ID), shapeChannel}, v, ChannelUpdated{Channel: v})
}

func (n *Notifier) ChannelFull(id domain.ChannelID, full *domain.ChannelFull) bool {
	v := *full
	v.Members = append([]domain.Member(nil), full.Members...)
	return n.publish(shapeKey{domain.ChannelRef(id), shapeChannelFull}, v, ChannelFullUpdated{ChannelID: id, Full: v})
}

func (n *Notifier) SecretChat(s *domain.SecretChat) bool {
	v := *s
	return n.publish(shapeKey{domain.SecretChatRef(s.ID), shapeSecretChat}, v, SecretChatUpdated{SecretChat: v})
}

// Contacts publishes ContactsUpdated if the sorted list changed.
func (n *Notifier) Contacts(ids []domain.UserID) bool {
	v := append([]domain.UserID(nil), ids...)
	return n.publish(shapeKey{shape: shapeContacts}, v, ContactsUpdated{UserIDs: v})
}

// Forget drops the remembered full-record shape of ref so the next
// publication is unconditional. Used after a full record is invalidated.
func (n *Notifier) Forget(ref domain.Ref) {
	for _, s := range []shape{shapeAccountFull, shapeBasicGroupFull, shapeChannelFull} {
		delete(n.last, shapeKey{ref, s})
	}
}

// Sent returns the number of updates published.
func (n *Notifier) Sent() int {
	return n.sent
}
