package persist

import (
	"github.com/go-faster/errors"

	"github.com/danhigham/tgcache/internal/domain"
)

const (
	scalarLayout   = 1
	contactsLayout = 1
)

// KeyImportedContacts holds the contact list last passed to a replace.
const KeyImportedContacts = "imported_contacts"

func EncodeInt64(v int64) []byte {
	e := newEncoder(scalarLayout)
	e.b.PutLong(v)
	return e.bytes()
}

func DecodeInt64(data []byte) (int64, error) {
	d, err := newDecoder(data, scalarLayout)
	if err != nil {
		return 0, err
	}
	v := d.long()
	return v, d.finish("int64")
}

// ContactsBasis is the input of the contact list hash: the server-side saved
// contact count and the sorted contact ids.
type ContactsBasis struct {
	SavedCount int32
	UserIDs    []domain.UserID
}

func EncodeContactsBasis(b *ContactsBasis) []byte {
	e := newEncoder(contactsLayout)
	e.b.PutInt32(b.SavedCount)
	e.b.PutInt(len(b.UserIDs))
	for _, id := range b.UserIDs {
		e.b.PutLong(int64(id))
	}
	return e.bytes()
}

func DecodeContactsBasis(data []byte) (ContactsBasis, error) {
	d, err := newDecoder(data, contactsLayout)
	if err != nil {
		return ContactsBasis{}, err
	}
	b := ContactsBasis{SavedCount: d.int32()}
	n := d.int32()
	if n < 0 || int(n) > len(data)/8 {
		return ContactsBasis{}, errors.Wrap(ErrCorrupt, "decode contacts basis: bad count")
	}
	for i := int32(0); i < n && d.err == nil; i++ {
		b.UserIDs = append(b.UserIDs, domain.UserID(d.long()))
	}
	return b, d.finish("contacts basis")
}

func EncodeContacts(contacts []domain.Contact) []byte {
	e := newEncoder(contactsLayout)
	e.b.PutInt(len(contacts))
	for _, c := range contacts {
		e.b.PutString(c.Phone)
		e.b.PutString(c.FirstName)
		e.b.PutString(c.LastName)
		e.b.PutLong(int64(c.UserID))
	}
	return e.bytes()
}

func DecodeContacts(data []byte) ([]domain.Contact, error) {
	d, err := newDecoder(data, contactsLayout)
	if err != nil {
		return nil, err
	}
	n := d.int32()
	if n < 0 || int(n) > len(data) {
		return nil, errors.Wrap(ErrCorrupt, "decode contacts: bad count")
	}
	out := make([]domain.Contact, 0, n)
	for i := int32(0); i < n && d.err == nil; i++ {
		out = append(out, domain.Contact{
			Phone:     d.string(),
			FirstName: d.string(),
			LastName:  d.string(),
			UserID:    domain.UserID(d.long()),
		})
	}
	if err := d.finish("contacts"); err != nil {
		return nil, err
	}
	return out, nil
}
