package domain

// SecretChatState is the lifecycle of an encrypted pairing. Transitions only
// move forward: Unknown -> Waiting -> Active -> Closed.
type SecretChatState uint8

const (
	SecretChatUnknown SecretChatState = iota
	SecretChatWaiting
	SecretChatActive
	SecretChatClosed
)

func (s SecretChatState) String() string {
	switch s {
	case SecretChatWaiting:
		return "waiting"
	case SecretChatActive:
		return "active"
	case SecretChatClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SecretChat is an end-to-end encrypted pairing with another account.
type SecretChat struct {
	ID         SecretChatID
	AccessHash int64
	UserID     UserID
	State      SecretChatState
	IsOutbound bool
	Date       int32
	TTL        int32
	Layer      int32
	KeyHash    []byte
}

// Contact is an entry of an import request.
type Contact struct {
	Phone     string
	FirstName string
	LastName  string
	// UserID is filled in once the contact is matched to an account.
	UserID UserID
}
