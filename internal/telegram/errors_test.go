package telegram

import (
	"testing"

	"github.com/go-faster/errors"
	"github.com/gotd/td/tgerr"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		typ  string
		want error
	}{
		{"USER_ID_INVALID", ErrNotFound},
		{"CHANNEL_INVALID", ErrNotFound},
		{"CHANNEL_PRIVATE", ErrInaccessible},
		{"CHAT_ADMIN_REQUIRED", ErrInaccessible},
		{"USER_PRIVACY_RESTRICTED", ErrPrivacy},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			err := classify(tgerr.New(400, tt.typ))
			assert.ErrorIs(t, err, tt.want)
			assert.Contains(t, err.Error(), tt.typ)
		})
	}

	other := tgerr.New(420, "FLOOD_WAIT_30")
	assert.Same(t, other, classify(other))
	assert.NoError(t, classify(nil))

	plain := errors.New("connection reset")
	assert.Equal(t, plain, classify(plain))
}
