package persist

import (
	"testing"
	"time"

	"github.com/gotd/td/bin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danhigham/tgcache/internal/domain"
)

func TestAccount_RoundTrip(t *testing.T) {
	a := domain.Account{
		ID:             42,
		AccessHash:     -7,
		FirstName:      "Ada",
		LastName:       "Lovelace",
		Username:       "ada",
		Photo:          domain.Photo{ID: 9, DCID: 2, Stripped: []byte{1, 2, 3}},
		IsBot:          true,
		BotInfoVersion: 4,
		Outbound:       domain.LinkContact,
		Inbound:        domain.LinkKnowsPhoneNumber,
		Presence:       domain.OfflinePresence(1700000000),
		IsVerified:     true,
		LanguageCode:   "en",
		CacheVersion:   3,
	}

	got, err := DecodeAccount(EncodeAccount(&a))
	require.NoError(t, err)
	assert.Equal(t, a, got)
}

func TestBasicGroup_LayoutOneForcesVersionRefresh(t *testing.T) {
	// Layout 1 had a single version counter and no cache version.
	var b bin.Buffer
	b.PutInt32(1)
	b.PutUint32(1) // active
	b.PutLong(77)
	b.PutString("old group")
	b.PutInt32(5)  // participants
	b.PutInt32(10) // date
	e := &encoder{}
	e.memberStatus(domain.RegularStatus())
	b.Put(e.b.Buf)
	b.PutUint32(permissionBits(domain.AllPermissions()))
	b.PutInt32(12) // version

	g, err := DecodeBasicGroup(b.Buf)
	require.NoError(t, err)
	assert.Equal(t, domain.ChatID(77), g.ID)
	assert.Equal(t, int32(12), g.Version)
	assert.Equal(t, int32(-1), g.DefaultPermissionsVersion)
	assert.Equal(t, int32(-1), g.PinnedMessageVersion)
	assert.True(t, g.IsActive)
	assert.Zero(t, g.CacheVersion)
}

func TestDecode_Corrupt(t *testing.T) {
	c := domain.Channel{ID: 5, Title: "news", Status: domain.BannedStatus(100)}
	data := EncodeChannel(&c)

	_, err := DecodeChannel(data[:len(data)-3])
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeChannel([]byte{0xff, 0xff, 0xff, 0x7f})
	require.ErrorIs(t, err, ErrCorrupt)

	_, err = DecodeSecretChat(nil)
	require.ErrorIs(t, err, ErrCorrupt)
}

func TestMemberStatus_UnknownKind(t *testing.T) {
	for _, kind := range []int32{-1, -256, int32(domain.MemberBanned) + 1, 256} {
		var e encoder
		e.b.PutInt32(kind)
		e.b.PutUint32(0)
		e.b.PutUint32(0)
		e.b.PutUint32(0)
		e.b.PutInt32(0)

		d := &decoder{b: bin.Buffer{Buf: e.bytes()}, layout: 1}
		d.memberStatus()
		require.ErrorIs(t, d.finish("member status"), ErrCorrupt, "kind %d", kind)
	}

	var e encoder
	e.memberStatus(domain.BannedStatus(100))
	d := &decoder{b: bin.Buffer{Buf: e.bytes()}, layout: 1}
	s := d.memberStatus()
	require.NoError(t, d.finish("member status"))
	assert.Equal(t, domain.MemberBanned, s.Kind)
}

func TestChannelFull_MembersNotPersisted(t *testing.T) {
	full := domain.ChannelFull{
		Description:      "about",
		ParticipantCount: 10,
		LinkedChannelID:  3,
		Members:          []domain.Member{{UserID: 1}},
		ExpiresAt:        time.Unix(1700000000, 0),
		Version:          8,
	}

	got, err := DecodeChannelFull(EncodeChannelFull(&full))
	require.NoError(t, err)
	assert.Nil(t, got.Members)
	assert.Equal(t, "about", got.Description)
	assert.Equal(t, domain.ChannelID(3), got.LinkedChannelID)
	assert.Equal(t, int32(8), got.Version)
	assert.True(t, got.ExpiresAt.Equal(full.ExpiresAt))
}

func TestBasicGroupFull_Members(t *testing.T) {
	full := domain.BasicGroupFull{
		CreatorUserID: 1,
		Members: []domain.Member{
			{UserID: 1, Status: domain.CreatorStatus("boss", false, true)},
			{UserID: 2, InviterUserID: 1, JoinedDate: 50, Status: domain.AdministratorStatus(domain.AdminRights{CanBanUsers: true}, "", true)},
		},
		Version: 3,
	}

	got, err := DecodeBasicGroupFull(EncodeBasicGroupFull(&full))
	require.NoError(t, err)
	require.Len(t, got.Members, 2)
	assert.Equal(t, "boss", got.Members[0].Status.Rank)
	assert.True(t, got.Members[1].Status.Rights.CanBanUsers)
	assert.Equal(t, domain.UserID(1), got.Members[1].InviterUserID)
}

func TestParseKey(t *testing.T) {
	ref, full, err := ParseKey(FullKey(domain.ChannelRef(99)))
	require.NoError(t, err)
	assert.True(t, full)
	assert.Equal(t, domain.ChannelRef(99), ref)

	ref, full, err = ParseKey(EntityKey(domain.AccountRef(5)))
	require.NoError(t, err)
	assert.False(t, full)
	assert.Equal(t, domain.AccountRef(5), ref)

	_, _, err = ParseKey(KeySelfID)
	assert.Error(t, err)
}

func TestScalars_RoundTrip(t *testing.T) {
	v, err := DecodeInt64(EncodeInt64(-99))
	require.NoError(t, err)
	assert.Equal(t, int64(-99), v)

	basis := ContactsBasis{SavedCount: 3, UserIDs: []domain.UserID{1, 5, 9}}
	gotBasis, err := DecodeContactsBasis(EncodeContactsBasis(&basis))
	require.NoError(t, err)
	assert.Equal(t, basis, gotBasis)

	contacts := []domain.Contact{{Phone: "100", FirstName: "A"}, {Phone: "200", LastName: "B", UserID: 7}}
	gotContacts, err := DecodeContacts(EncodeContacts(contacts))
	require.NoError(t, err)
	assert.Equal(t, contacts, gotContacts)
}

func TestContactsBasis_Truncated(t *testing.T) {
	data := EncodeContactsBasis(&ContactsBasis{SavedCount: 1, UserIDs: []domain.UserID{1, 2}})
	_, err := DecodeContactsBasis(data[:len(data)-4])
	require.ErrorIs(t, err, ErrCorrupt)
}
