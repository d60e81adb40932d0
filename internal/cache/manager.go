// Package cache is the client-side mirror of server entities: accounts,
// basic groups, channels and secret chats together with their full records.
//
// All state is owned by one goroutine (the loop started by Run). Public
// methods may be called from any goroutine; they hop onto the loop and wait
// for the outcome. Network and storage I/O runs off the loop and hands its
// results back through the same queue.
package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"go.uber.org/zap"

	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/loader"
	"github.com/danhigham/tgcache/internal/notify"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/search"
	"github.com/danhigham/tgcache/internal/telegram"
	"github.com/danhigham/tgcache/internal/timers"
)

// Options tunes a Manager. Zero values take the defaults below.
type Options struct {
	// FullInfoTTL bounds how long full records are trusted.
	FullInfoTTL time.Duration
	// FullInfoTTLBot applies to bot accounts instead of FullInfoTTL.
	FullInfoTTLBot time.Duration
	// RepairDelay coalesces repair fetches triggered close together.
	RepairDelay time.Duration
	// DemoteDelay separates the two steps of removing a channel member
	// without banning them.
	DemoteDelay time.Duration
	// ContactsSyncInterval re-checks the contact list hash periodically.
	// Zero disables the periodic check.
	ContactsSyncInterval time.Duration
	// CloseTimeout bounds how long Close waits for in-flight saves.
	CloseTimeout time.Duration
	// LoadTries is how many times the network is asked for an entity that
	// it answered without.
	LoadTries int

	Clock     timers.Clock
	Logger    *zap.Logger
	Sink      notify.Sink
	WriteBack []persist.WriteBackOption
}

func (o Options) withDefaults() Options {
	if o.FullInfoTTL <= 0 {
		o.FullInfoTTL = time.Minute
	}
	if o.FullInfoTTLBot <= 0 {
		o.FullInfoTTLBot = time.Hour
	}
	if o.RepairDelay <= 0 {
		o.RepairDelay = time.Second
	}
	if o.DemoteDelay <= 0 {
		o.DemoteDelay = time.Second
	}
	if o.CloseTimeout <= 0 {
		o.CloseTimeout = 5 * time.Second
	}
	if o.LoadTries <= 0 {
		o.LoadTries = 2
	}
	if o.Clock == nil {
		o.Clock = timers.System
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Sink == nil {
		o.Sink = notify.Fanout(nil)
	}
	return o
}

// Manager owns every entity table. Construct it with New, start it with Run
// and stop it with Close or by cancelling Run's context.
type Manager struct {
	opts      Options
	transport telegram.Transport
	storage   persist.Storage
	clock     timers.Clock
	logger    *zap.Logger

	tasks    chan func()
	quit     chan struct{}
	stopping chan struct{}
	done     chan struct{}
	started  atomic.Bool
	quitOnce sync.Once

	// ctx is cancelled on shutdown; every off-loop request uses it.
	ctx    context.Context
	cancel context.CancelFunc

	notifier *notify.Notifier
	wb       *persist.WriteBack

	accounts     map[domain.UserID]*accountRecord
	accountFulls map[domain.UserID]*accountFullRecord
	groups       map[domain.ChatID]*basicGroupRecord
	groupFulls   map[domain.ChatID]*basicGroupFullRecord
	channels     map[domain.ChannelID]*channelRecord
	channelFulls map[domain.ChannelID]*channelFullRecord
	secrets      map[domain.SecretChatID]*secretChatRecord

	selfID     domain.UserID
	selfOnline int32
	hashes     hashTable

	accountLoader     *loader.Loader[domain.UserID, domain.Account]
	groupLoader       *loader.Loader[domain.ChatID, domain.BasicGroup]
	channelLoader     *loader.Loader[domain.ChannelID, domain.Channel]
	secretLoader      *loader.Loader[domain.SecretChatID, domain.SecretChat]
	accountFullLoader *loader.Loader[domain.UserID, domain.AccountFull]
	groupFullLoader   *loader.Loader[domain.ChatID, domain.BasicGroupFull]
	channelFullLoader *loader.Loader[domain.ChannelID, domain.ChannelFull]

	presenceTimers *timers.Registry[domain.UserID]
	statusTimers   *timers.Registry[domain.Ref]
	repairTimers   *timers.Registry[domain.Ref]
	syncTimer      *timers.Registry[struct{}]

	contacts contactList
	index    *search.Index

	// ops counts mutations in flight per entity.
	ops map[domain.Ref]int
	// pinnedAtFetch holds, per basic group full fetch in flight, the pinned
	// message version when it started.
	pinnedAtFetch map[domain.ChatID]int32
}

// New creates a Manager. It does nothing until Run is called.
func New(transport telegram.Transport, storage persist.Storage, opts Options) *Manager {
	opts = opts.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		opts:      opts,
		transport: transport,
		storage:   storage,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("cache"),

		tasks:    make(chan func(), 256),
		quit:     make(chan struct{}),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),

		ctx:    ctx,
		cancel: cancel,

		notifier: notify.New(opts.Sink),

		accounts:     make(map[domain.UserID]*accountRecord),
		accountFulls: make(map[domain.UserID]*accountFullRecord),
		groups:       make(map[domain.ChatID]*basicGroupRecord),
		groupFulls:   make(map[domain.ChatID]*basicGroupFullRecord),
		channels:     make(map[domain.ChannelID]*channelRecord),
		channelFulls: make(map[domain.ChannelID]*channelFullRecord),
		secrets:      make(map[domain.SecretChatID]*secretChatRecord),

		index: search.NewIndex(),
		ops:   make(map[domain.Ref]int),

		pinnedAtFetch: make(map[domain.ChatID]int32),
	}
	m.wb = persist.NewWriteBack(storage, m.enqueue, opts.Logger.Named("writeback"), opts.WriteBack...)

	m.presenceTimers = timers.NewRegistry(m.clock, m.enqueue, m.onPresenceExpired)
	m.statusTimers = timers.NewRegistry(m.clock, m.enqueue, m.onStatusExpired)
	m.repairTimers = timers.NewRegistry(m.clock, m.enqueue, m.onRepair)
	m.syncTimer = timers.NewRegistry(m.clock, m.enqueue, func(struct{}) { m.periodicContactsSync() })

	m.initLoaders()
	return m
}

// post queues f to run on the loop. It reports false once shutdown started.
func (m *Manager) post(f func()) bool {
	select {
	case <-m.stopping:
		return false
	default:
	}
	select {
	case m.tasks <- f:
		return true
	case <-m.stopping:
		return false
	}
}

func (m *Manager) enqueue(f func()) {
	m.post(f)
}

// Run restores persisted state and then serves requests until ctx is
// cancelled or Close is called.
func (m *Manager) Run(ctx context.Context) error {
	if !m.started.CompareAndSwap(false, true) {
		return errors.New("cache already running")
	}
	defer close(m.done)

	if err := m.restore(ctx); err != nil {
		// The cache still works without its persisted state.
		m.logger.Error("Failed to restore persisted state", zap.Error(err))
	}
	if m.opts.ContactsSyncInterval > 0 {
		m.syncTimer.Set(struct{}{}, m.clock.Now().Add(m.opts.ContactsSyncInterval))
	}
	m.logger.Info("Cache started",
		zap.Int("accounts", len(m.accounts)),
		zap.Int("basic_groups", len(m.groups)),
		zap.Int("channels", len(m.channels)),
		zap.Int("secret_chats", len(m.secrets)),
	)

	for {
		select {
		case f := <-m.tasks:
			f()
		case <-m.quit:
			m.shutdown()
			return nil
		case <-ctx.Done():
			m.shutdown()
			return ctx.Err()
		}
	}
}

// Close stops the loop and waits for it to finish. Blocking calls still in
// progress return ErrUnavailable.
func (m *Manager) Close() {
	m.quitOnce.Do(func() { close(m.quit) })
	if m.started.Load() {
		<-m.done
	}
}

func (m *Manager) shutdown() {
	close(m.stopping)
	m.cancel()

	m.accountLoader.Close(ErrUnavailable)
	m.groupLoader.Close(ErrUnavailable)
	m.channelLoader.Close(ErrUnavailable)
	m.secretLoader.Close(ErrUnavailable)
	m.accountFullLoader.Close(ErrUnavailable)
	m.groupFullLoader.Close(ErrUnavailable)
	m.channelFullLoader.Close(ErrUnavailable)

	m.presenceTimers.Stop()
	m.statusTimers.Stop()
	m.repairTimers.Stop()
	m.syncTimer.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.CloseTimeout)
	defer cancel()
	if err := m.wb.Close(ctx); err != nil {
		m.logger.Warn("Saves still pending at shutdown, kept for replay", zap.Error(err))
	}
	m.logger.Info("Cache stopped")
}

// call runs fn on the loop and waits for it to report a result.
func call[T any](ctx context.Context, m *Manager, fn func(done func(T, error))) (T, error) {
	type result struct {
		v   T
		err error
	}
	var zero T
	ch := make(chan result, 1)
	ok := m.post(func() {
		fn(func(v T, err error) {
			select {
			case ch <- result{v, err}:
			default:
			}
		})
	})
	if !ok {
		return zero, ErrUnavailable
	}
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-m.done:
		select {
		case r := <-ch:
			return r.v, r.err
		default:
			return zero, ErrUnavailable
		}
	}
}

// exec runs f on the loop and waits for it.
func (m *Manager) exec(ctx context.Context, f func()) error {
	_, err := call(ctx, m, func(done func(struct{}, error)) {
		f()
		done(struct{}{}, nil)
	})
	return err
}

// goRequest runs req off the loop and delivers its outcome to then on the
// loop. then is dropped if the cache shuts down first.
func (m *Manager) goRequest(req func(ctx context.Context) error, then func(error)) {
	ctx := m.ctx
	go func() {
		err := req(ctx)
		m.post(func() { then(err) })
	}()
}

func (m *Manager) now() time.Time {
	return m.clock.Now()
}

// SelfID returns the current account's id, or zero if no snapshot carried
// it yet.
func (m *Manager) SelfID(ctx context.Context) (domain.UserID, error) {
	return call(ctx, m, func(done func(domain.UserID, error)) {
		done(m.selfID, nil)
	})
}
