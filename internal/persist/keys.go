package persist

import (
	"strconv"
	"strings"

	"github.com/go-faster/errors"

	"github.com/danhigham/tgcache/internal/domain"
)

// Scalar keys.
const (
	KeySelfID            = "self_id"
	KeyContactsHashBasis = "contacts_hash_basis"
	KeyOnlineStatus      = "online_status"
)

var kindPrefix = map[domain.Kind]string{
	domain.KindAccount:    "us",
	domain.KindBasicGroup: "gr",
	domain.KindChannel:    "ch",
	domain.KindSecretChat: "sc",
}

// EntityKey is the storage key of an entity's core record.
func EntityKey(ref domain.Ref) string {
	return kindPrefix[ref.Kind] + strconv.FormatInt(ref.ID, 10)
}

// FullKey is the storage key of an entity's full record.
func FullKey(ref domain.Ref) string {
	return kindPrefix[ref.Kind] + "f" + strconv.FormatInt(ref.ID, 10)
}

// KindPrefix returns the prefix shared by every core record of a kind, for
// use with List.
func KindPrefix(kind domain.Kind) string {
	return kindPrefix[kind]
}

// ParseKey splits a record key into its reference and whether it names a
// full record. Scalar keys are rejected.
func ParseKey(key string) (domain.Ref, bool, error) {
	if len(key) < 3 {
		return domain.Ref{}, false, errors.Errorf("bad key %q", key)
	}
	for kind, prefix := range kindPrefix {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		rest := key[len(prefix):]
		full := strings.HasPrefix(rest, "f")
		if full {
			rest = rest[1:]
		}
		id, err := strconv.ParseInt(rest, 10, 64)
		if err != nil {
			return domain.Ref{}, false, errors.Wrapf(err, "bad key %q", key)
		}
		return domain.Ref{Kind: kind, ID: id}, full, nil
	}
	return domain.Ref{}, false, errors.Errorf("bad key %q", key)
}
