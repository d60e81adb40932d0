package persist

import (
	"github.com/go-faster/errors"
	"github.com/gotd/td/bin"

	"github.com/danhigham/tgcache/internal/domain"
)

// ErrCorrupt is returned when a persisted blob cannot be decoded.
var ErrCorrupt = errors.New("corrupt record")

// Every record starts with its layout version followed by a flags word.
// Optional fields are written only when their flag bit is set; fields added
// by a later layout are read only when the stored version is recent enough.
const (
	accountLayout        = 3
	accountFullLayout    = 2
	basicGroupLayout     = 2
	basicGroupFullLayout = 1
	channelLayout        = 2
	channelFullLayout    = 2
	secretChatLayout     = 1
)

type encoder struct {
	b bin.Buffer
}

func newEncoder(layout int32) *encoder {
	e := &encoder{}
	e.b.PutInt32(layout)
	return e
}

func (e *encoder) bytes() []byte {
	return e.b.Copy()
}

type decoder struct {
	b      bin.Buffer
	layout int32
	err    error
}

func newDecoder(data []byte, maxLayout int32) (*decoder, error) {
	d := &decoder{b: bin.Buffer{Buf: data}}
	d.layout = d.int32()
	if d.err != nil {
		return nil, errors.Wrap(ErrCorrupt, "read layout")
	}
	if d.layout <= 0 || d.layout > maxLayout {
		return nil, errors.Wrapf(ErrCorrupt, "unsupported layout %d", d.layout)
	}
	return d, nil
}

func (d *decoder) int32() int32 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.Int32()
	d.err = err
	return v
}

func (d *decoder) uint32() uint32 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.Uint32()
	d.err = err
	return v
}

func (d *decoder) long() int64 {
	if d.err != nil {
		return 0
	}
	v, err := d.b.Long()
	d.err = err
	return v
}

func (d *decoder) string() string {
	if d.err != nil {
		return ""
	}
	v, err := d.b.String()
	d.err = err
	return v
}

func (d *decoder) raw() []byte {
	if d.err != nil {
		return nil
	}
	v, err := d.b.Bytes()
	d.err = err
	return v
}

func (d *decoder) finish(what string) error {
	if d.err != nil {
		return errors.Wrapf(ErrCorrupt, "decode %s: %v", what, d.err)
	}
	return nil
}

type flags uint32

func (f *flags) set(bit uint, v bool) {
	if v {
		*f |= 1 << bit
	}
}

func (f flags) has(bit uint) bool {
	return f&(1<<bit) != 0
}

// Photo

func (e *encoder) photo(p domain.Photo) {
	var f flags
	f.set(0, p.HasVideo)
	f.set(1, len(p.Stripped) > 0)
	e.b.PutUint32(uint32(f))
	e.b.PutLong(p.ID)
	e.b.PutInt(p.DCID)
	if f.has(1) {
		e.b.PutBytes(p.Stripped)
	}
}

func (d *decoder) photo() domain.Photo {
	f := flags(d.uint32())
	p := domain.Photo{
		HasVideo: f.has(0),
		ID:       d.long(),
		DCID:     int(d.int32()),
	}
	if f.has(1) {
		p.Stripped = d.raw()
	}
	return p
}

// Permissions and rights are stored as bit sets.

func permissionBits(p domain.Permissions) uint32 {
	var f flags
	f.set(0, p.CanSendMessages)
	f.set(1, p.CanSendMedia)
	f.set(2, p.CanSendPolls)
	f.set(3, p.CanSendOther)
	f.set(4, p.CanAddWebPagePreviews)
	f.set(5, p.CanChangeInfo)
	f.set(6, p.CanInviteUsers)
	f.set(7, p.CanPinMessages)
	f.set(8, p.CanManageTopics)
	return uint32(f)
}

func permissionsFromBits(v uint32) domain.Permissions {
	f := flags(v)
	return domain.Permissions{
		CanSendMessages:       f.has(0),
		CanSendMedia:          f.has(1),
		CanSendPolls:          f.has(2),
		CanSendOther:          f.has(3),
		CanAddWebPagePreviews: f.has(4),
		CanChangeInfo:         f.has(5),
		CanInviteUsers:        f.has(6),
		CanPinMessages:        f.has(7),
		CanManageTopics:       f.has(8),
	}
}

func rightBits(r domain.AdminRights) uint32 {
	var f flags
	f.set(0, r.CanManageChat)
	f.set(1, r.CanChangeInfo)
	f.set(2, r.CanPostMessages)
	f.set(3, r.CanEditMessages)
	f.set(4, r.CanDeleteMessages)
	f.set(5, r.CanBanUsers)
	f.set(6, r.CanInviteUsers)
	f.set(7, r.CanPinMessages)
	f.set(8, r.CanPromoteMembers)
	f.set(9, r.CanManageCalls)
	f.set(10, r.CanManageTopics)
	f.set(11, r.IsAnonymous)
	return uint32(f)
}

func rightsFromBits(v uint32) domain.AdminRights {
	f := flags(v)
	return domain.AdminRights{
		CanManageChat:     f.has(0),
		CanChangeInfo:     f.has(1),
		CanPostMessages:   f.has(2),
		CanEditMessages:   f.has(3),
		CanDeleteMessages: f.has(4),
		CanBanUsers:       f.has(5),
		CanInviteUsers:    f.has(6),
		CanPinMessages:    f.has(7),
		CanPromoteMembers: f.has(8),
		CanManageCalls:    f.has(9),
		CanManageTopics:   f.has(10),
		IsAnonymous:       f.has(11),
	}
}

func (e *encoder) memberStatus(s domain.MemberStatus) {
	var f flags
	f.set(0, s.IsAnonymous)
	f.set(1, s.IsMember)
	f.set(2, s.CanBeEdited)
	f.set(3, s.Rank != "")
	e.b.PutInt32(int32(s.Kind))
	e.b.PutUint32(uint32(f))
	e.b.PutUint32(rightBits(s.Rights))
	e.b.PutUint32(permissionBits(s.Restrictions))
	e.b.PutInt32(s.Until)
	if f.has(3) {
		e.b.PutString(s.Rank)
	}
}

func (d *decoder) memberStatus() domain.MemberStatus {
	raw := d.int32()
	kind := domain.MemberStatusKind(raw)
	f := flags(d.uint32())
	s := domain.MemberStatus{
		Kind:         kind,
		IsAnonymous:  f.has(0),
		IsMember:     f.has(1),
		CanBeEdited:  f.has(2),
		Rights:       rightsFromBits(d.uint32()),
		Restrictions: permissionsFromBits(d.uint32()),
		Until:        d.int32(),
	}
	if f.has(3) {
		s.Rank = d.string()
	}
	if (raw < 0 || raw > int32(domain.MemberBanned)) && d.err == nil {
		d.err = errors.Errorf("unknown member status %d", raw)
	}
	return s
}

func (e *encoder) members(ms []domain.Member) {
	e.b.PutInt(len(ms))
	for _, m := range ms {
		e.b.PutLong(int64(m.UserID))
		e.b.PutLong(int64(m.InviterUserID))
		e.b.PutInt32(m.JoinedDate)
		e.memberStatus(m.Status)
	}
}

func (d *decoder) members() []domain.Member {
	n := int(d.int32())
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.b.Len() {
		d.err = errors.Errorf("bad member count %d", n)
		return nil
	}
	ms := make([]domain.Member, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		ms = append(ms, domain.Member{
			UserID:        domain.UserID(d.long()),
			InviterUserID: domain.UserID(d.long()),
			JoinedDate:    d.int32(),
			Status:        d.memberStatus(),
		})
	}
	return ms
}
