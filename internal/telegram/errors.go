package telegram

import (
	"github.com/go-faster/errors"
	"github.com/gotd/td/tgerr"
)

var (
	// ErrNotFound marks requests for entities the server does not know.
	ErrNotFound = errors.New("entity not found")
	// ErrInaccessible marks entities that exist but are not visible to the
	// current account.
	ErrInaccessible = errors.New("entity inaccessible")
	// ErrPrivacy marks operations refused because of the target's privacy
	// settings.
	ErrPrivacy = errors.New("privacy restricted")
)

var notFoundTypes = []string{
	"USER_ID_INVALID",
	"PEER_ID_INVALID",
	"CHAT_ID_INVALID",
	"CHANNEL_INVALID",
	"USERNAME_NOT_OCCUPIED",
	"INPUT_USER_DEACTIVATED",
}

var inaccessibleTypes = []string{
	"CHANNEL_PRIVATE",
	"CHAT_FORBIDDEN",
	"CHANNEL_PUBLIC_GROUP_NA",
	"USER_BANNED_IN_CHANNEL",
	"CHAT_ADMIN_REQUIRED",
	"CHAT_WRITE_FORBIDDEN",
}

var privacyTypes = []string{
	"USER_PRIVACY_RESTRICTED",
	"USER_NOT_MUTUAL_CONTACT",
	"USER_CHANNELS_TOO_MUCH",
}

// classify wraps RPC errors with the sentinel describing them. Other errors
// (network, flood waits) pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case tgerr.Is(err, notFoundTypes...):
		return errors.Wrap(ErrNotFound, err.Error())
	case tgerr.Is(err, inaccessibleTypes...):
		return errors.Wrap(ErrInaccessible, err.Error())
	case tgerr.Is(err, privacyTypes...):
		return errors.Wrap(ErrPrivacy, err.Error())
	default:
		return err
	}
}
