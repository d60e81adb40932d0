package persist

import (
	"context"
	"sort"

	"github.com/go-faster/errors"

	"github.com/danhigham/tgcache/internal/domain"
)

// Record is one decoded entry of the store.
type Record struct {
	Key  string
	Ref  domain.Ref
	Full bool
	// Value is the decoded record, or nil when Err is set.
	Value any
	Err   error
}

// Contents is everything a Storage holds, decoded.
type Contents struct {
	SelfID   domain.UserID
	Contacts *ContactsBasis
	Records  []Record
	// Pending counts log entries not yet committed.
	Pending int
}

func decodeRecord(ref domain.Ref, full bool, data []byte) (any, error) {
	switch {
	case ref.Kind == domain.KindAccount && full:
		return DecodeAccountFull(data)
	case ref.Kind == domain.KindAccount:
		return DecodeAccount(data)
	case ref.Kind == domain.KindBasicGroup && full:
		return DecodeBasicGroupFull(data)
	case ref.Kind == domain.KindBasicGroup:
		return DecodeBasicGroup(data)
	case ref.Kind == domain.KindChannel && full:
		return DecodeChannelFull(data)
	case ref.Kind == domain.KindChannel:
		return DecodeChannel(data)
	case ref.Kind == domain.KindSecretChat && !full:
		return DecodeSecretChat(data)
	default:
		return nil, errors.Wrapf(ErrCorrupt, "no layout for %s (full=%t)", ref, full)
	}
}

// ReadAll decodes every record and scalar in s. Undecodable records are
// reported in place rather than failing the whole read.
func ReadAll(ctx context.Context, s Storage) (*Contents, error) {
	c := &Contents{}

	if v, err := s.Get(ctx, KeySelfID); err != nil {
		return nil, errors.Wrap(err, "get self id")
	} else if v != nil {
		id, err := DecodeInt64(v)
		if err != nil {
			return nil, errors.Wrap(err, "decode self id")
		}
		c.SelfID = domain.UserID(id)
	}
	if v, err := s.Get(ctx, KeyContactsHashBasis); err != nil {
		return nil, errors.Wrap(err, "get contacts basis")
	} else if v != nil {
		b, err := DecodeContactsBasis(v)
		if err != nil {
			return nil, errors.Wrap(err, "decode contacts basis")
		}
		c.Contacts = &b
	}

	for _, kind := range []domain.Kind{domain.KindAccount, domain.KindBasicGroup, domain.KindChannel, domain.KindSecretChat} {
		rows, err := s.List(ctx, KindPrefix(kind))
		if err != nil {
			return nil, errors.Wrapf(err, "list %s", kind)
		}
		for key, data := range rows {
			ref, full, err := ParseKey(key)
			if err != nil || ref.Kind != kind {
				continue
			}
			r := Record{Key: key, Ref: ref, Full: full}
			r.Value, r.Err = decodeRecord(ref, full, data)
			if r.Err != nil {
				r.Value = nil
			}
			c.Records = append(c.Records, r)
		}
	}
	sort.Slice(c.Records, func(i, j int) bool {
		a, b := c.Records[i], c.Records[j]
		if a.Ref.Kind != b.Ref.Kind {
			return a.Ref.Kind < b.Ref.Kind
		}
		if a.Ref.ID != b.Ref.ID {
			return a.Ref.ID < b.Ref.ID
		}
		return !a.Full && b.Full
	})

	pending, err := s.PendingLog(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "read pending log")
	}
	c.Pending = len(pending)
	return c, nil
}
