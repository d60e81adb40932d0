package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/persist"
)

func TestDumpDocument(t *testing.T) {
	ctx := context.Background()
	s := persist.NewMemoryStorage()
	a := domain.Account{ID: 7, FirstName: "Ada"}
	s.Put(persist.KeySelfID, persist.EncodeInt64(7))
	s.Put(persist.EntityKey(domain.AccountRef(7)), persist.EncodeAccount(&a))
	s.Put(persist.EntityKey(domain.ChannelRef(9)), []byte{1, 2})

	contents, err := persist.ReadAll(ctx, s)
	require.NoError(t, err)
	doc := dumpDocument(contents)
	require.Equal(t, int64(7), doc.SelfID)
	require.Len(t, doc.Records, 2)
	require.Equal(t, domain.AccountRef(7).String(), doc.Records[0].Ref)
	require.Empty(t, doc.Records[0].Error)
	require.NotEmpty(t, doc.Records[1].Error)
	require.Nil(t, doc.Records[1].Value)

	var buf bytes.Buffer
	require.NoError(t, yaml.NewEncoder(&buf).Encode(doc))
	require.Contains(t, buf.String(), "self_id: 7")
	require.Contains(t, buf.String(), "firstname: Ada")
}
