package cache

import (
	"context"
	"sync"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/loader"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

// hashTable mirrors access hashes for the network tiers, which run off the
// loop and so cannot read the tables.
type hashTable struct {
	mu sync.RWMutex
	m  map[domain.Ref]int64
}

func (h *hashTable) set(ref domain.Ref, hash int64) {
	if hash == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.m == nil {
		h.m = make(map[domain.Ref]int64)
	}
	h.m[ref] = hash
}

func (h *hashTable) get(ref domain.Ref) int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.m[ref]
}

func (m *Manager) inputAccount(id domain.UserID) telegram.InputAccount {
	return telegram.InputAccount{ID: id, AccessHash: m.hashes.get(domain.AccountRef(id))}
}

func (m *Manager) inputChannel(id domain.ChannelID) telegram.InputChannel {
	return telegram.InputChannel{ID: id, AccessHash: m.hashes.get(domain.ChannelRef(id))}
}

type numericID interface {
	~int64 | ~int32
}

// storeTier reads one record from persistent storage. Unreadable blobs are
// discarded by applyStored so the lookup falls through to the network.
func storeTier[K numericID](m *Manager, kind domain.Kind, full bool) loader.Tier[K] {
	var skip func(K) bool
	if full {
		// An expired full record in memory is newer than the stored one.
		skip = func(id K) bool { return m.hasFull(domain.Ref{Kind: kind, ID: int64(id)}) }
	}
	return loader.Tier[K]{
		Name: "store",
		Skip: skip,
		Fetch: func(ctx context.Context, id K) (func(), error) {
			ref := domain.Ref{Kind: kind, ID: int64(id)}
			key := persist.EntityKey(ref)
			if full {
				key = persist.FullKey(ref)
			}
			data, err := m.storage.Get(ctx, key)
			if err != nil || data == nil {
				return nil, err
			}
			return func() { m.applyStored(ref, full, data) }, nil
		},
	}
}

func (m *Manager) hasFull(ref domain.Ref) bool {
	switch ref.Kind {
	case domain.KindAccount:
		r, ok := m.accountFulls[domain.UserID(ref.ID)]
		return ok && r.received
	case domain.KindBasicGroup:
		r, ok := m.groupFulls[domain.ChatID(ref.ID)]
		return ok && r.received
	case domain.KindChannel:
		r, ok := m.channelFulls[domain.ChannelID(ref.ID)]
		return ok && r.received
	}
	return false
}

func (m *Manager) initLoaders() {
	log := m.logger.Named("loader")

	m.accountLoader = loader.New(
		func(id domain.UserID) (domain.Account, bool) {
			r, ok := m.account(id)
			if !ok {
				return domain.Account{}, false
			}
			return r.Account, true
		},
		m.enqueue, log.Named("account"),
		storeTier[domain.UserID](m, domain.KindAccount, false),
		loader.Tier[domain.UserID]{Name: "network", Fetch: func(ctx context.Context, id domain.UserID) (func(), error) {
			ents, err := m.transport.GetAccounts(ctx, []telegram.InputAccount{m.inputAccount(id)})
			if err != nil {
				return nil, err
			}
			return func() { m.ingest(ents) }, nil
		}},
	)

	m.groupLoader = loader.New(
		func(id domain.ChatID) (domain.BasicGroup, bool) {
			r, ok := m.group(id)
			if !ok {
				return domain.BasicGroup{}, false
			}
			return r.BasicGroup, true
		},
		m.enqueue, log.Named("basic_group"),
		storeTier[domain.ChatID](m, domain.KindBasicGroup, false),
		loader.Tier[domain.ChatID]{Name: "network", Fetch: func(ctx context.Context, id domain.ChatID) (func(), error) {
			ents, err := m.transport.GetBasicGroups(ctx, []domain.ChatID{id})
			if err != nil {
				return nil, err
			}
			return func() { m.ingest(ents) }, nil
		}},
	)

	m.channelLoader = loader.New(
		func(id domain.ChannelID) (domain.Channel, bool) {
			r, ok := m.channel(id)
			if !ok {
				return domain.Channel{}, false
			}
			return r.Channel, true
		},
		m.enqueue, log.Named("channel"),
		storeTier[domain.ChannelID](m, domain.KindChannel, false),
		loader.Tier[domain.ChannelID]{Name: "network", Fetch: func(ctx context.Context, id domain.ChannelID) (func(), error) {
			ents, err := m.transport.GetChannels(ctx, []telegram.InputChannel{m.inputChannel(id)})
			if err != nil {
				return nil, err
			}
			return func() { m.ingest(ents) }, nil
		}},
	)

	// Secret chats cannot be fetched; they only arrive through updates.
	m.secretLoader = loader.New(
		func(id domain.SecretChatID) (domain.SecretChat, bool) {
			r, ok := m.secrets[id]
			if !ok || !r.received {
				return domain.SecretChat{}, false
			}
			return r.SecretChat, true
		},
		m.enqueue, log.Named("secret_chat"),
		storeTier[domain.SecretChatID](m, domain.KindSecretChat, false),
	)

	m.accountFullLoader = loader.New(
		func(id domain.UserID) (domain.AccountFull, bool) {
			r, ok := m.accountFulls[id]
			if !ok || !r.received || r.IsExpired(m.now()) {
				return domain.AccountFull{}, false
			}
			return cloneAccountFull(&r.AccountFull), true
		},
		m.enqueue, log.Named("account_full"),
		storeTier[domain.UserID](m, domain.KindAccount, true),
		loader.Tier[domain.UserID]{Name: "network", Fetch: func(ctx context.Context, id domain.UserID) (func(), error) {
			res, err := m.transport.GetAccountFull(ctx, m.inputAccount(id))
			if err != nil {
				return nil, err
			}
			return func() { m.applyAccountFull(res) }, nil
		}},
	)

	m.groupFullLoader = loader.New(
		func(id domain.ChatID) (domain.BasicGroupFull, bool) {
			r, ok := m.groupFulls[id]
			if !ok || !r.received || r.IsExpired(m.now()) {
				return domain.BasicGroupFull{}, false
			}
			return cloneGroupFull(&r.BasicGroupFull), true
		},
		m.enqueue, log.Named("basic_group_full"),
		storeTier[domain.ChatID](m, domain.KindBasicGroup, true),
		loader.Tier[domain.ChatID]{Name: "network", Start: m.markPinnedAtFetch, Fetch: func(ctx context.Context, id domain.ChatID) (func(), error) {
			res, err := m.transport.GetBasicGroupFull(ctx, id)
			if err != nil {
				return nil, err
			}
			return func() { m.applyGroupFull(res) }, nil
		}},
	)

	m.channelFullLoader = loader.New(
		func(id domain.ChannelID) (domain.ChannelFull, bool) {
			r, ok := m.channelFulls[id]
			if !ok || !r.received || r.IsExpired(m.now()) {
				return domain.ChannelFull{}, false
			}
			return cloneChannelFull(&r.ChannelFull), true
		},
		m.enqueue, log.Named("channel_full"),
		storeTier[domain.ChannelID](m, domain.KindChannel, true),
		loader.Tier[domain.ChannelID]{Name: "network", Fetch: func(ctx context.Context, id domain.ChannelID) (func(), error) {
			res, err := m.transport.GetChannelFull(ctx, m.inputChannel(id))
			if err != nil {
				return nil, err
			}
			return func() { m.applyChannelFull(res) }, nil
		}},
	)
}
