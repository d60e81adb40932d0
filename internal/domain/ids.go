package domain

import (
	"fmt"
	"strconv"
)

// UserID identifies an account.
type UserID int64

// ChatID identifies a basic group.
type ChatID int64

// ChannelID identifies a broadcast channel or megagroup.
type ChannelID int64

// SecretChatID identifies an end-to-end encrypted pairing.
type SecretChatID int32

func (id UserID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id ChatID) String() string       { return strconv.FormatInt(int64(id), 10) }
func (id ChannelID) String() string    { return strconv.FormatInt(int64(id), 10) }
func (id SecretChatID) String() string { return strconv.FormatInt(int64(id), 10) }

// Kind is one of the four entity kinds held by the cache.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindAccount
	KindBasicGroup
	KindChannel
	KindSecretChat
)

func (k Kind) String() string {
	switch k {
	case KindAccount:
		return "account"
	case KindBasicGroup:
		return "basic_group"
	case KindChannel:
		return "channel"
	case KindSecretChat:
		return "secret_chat"
	default:
		return "unknown"
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, bool) {
	for _, k := range []Kind{KindAccount, KindBasicGroup, KindChannel, KindSecretChat} {
		if k.String() == s {
			return k, true
		}
	}
	return KindUnknown, false
}

// Ref names an entity by kind and numeric id. References between entities
// (secret chat -> account, basic group -> successor channel) are always
// stored as a Ref and resolved through the cache.
type Ref struct {
	Kind Kind
	ID   int64
}

func AccountRef(id UserID) Ref          { return Ref{Kind: KindAccount, ID: int64(id)} }
func BasicGroupRef(id ChatID) Ref       { return Ref{Kind: KindBasicGroup, ID: int64(id)} }
func ChannelRef(id ChannelID) Ref       { return Ref{Kind: KindChannel, ID: int64(id)} }
func SecretChatRef(id SecretChatID) Ref { return Ref{Kind: KindSecretChat, ID: int64(id)} }

func (r Ref) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}

// IsValid reports whether r names a concrete entity.
func (r Ref) IsValid() bool {
	return r.Kind != KindUnknown && r.ID > 0
}
