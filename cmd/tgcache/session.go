package main

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/danhigham/tgcache/internal/cache"
	"github.com/danhigham/tgcache/internal/config"
	"github.com/danhigham/tgcache/internal/domain"
	"github.com/danhigham/tgcache/internal/notify"
	"github.com/danhigham/tgcache/internal/persist"
	"github.com/danhigham/tgcache/internal/telegram"
)

// session wires the transport, the store and the cache together.
type session struct {
	logger  *zap.Logger
	storage *persist.SQLiteStorage
	hub     *notify.Hub
	gotd    *telegram.Gotd
	cache   *cache.Manager

	sessionDir string
	authorized chan struct{}
	authOnce   sync.Once
}

func openSession(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*session, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Cache.Database), 0o700); err != nil {
		return nil, errors.Wrap(err, "create database dir")
	}
	if err := os.MkdirAll(cfg.Telegram.SessionDir, 0o700); err != nil {
		return nil, errors.Wrap(err, "create session dir")
	}
	storage, err := persist.OpenSQLite(ctx, cfg.Cache.Database)
	if err != nil {
		return nil, err
	}

	s := &session{
		logger:  logger,
		storage: storage,
		hub:     notify.NewHub(),

		sessionDir: cfg.Telegram.SessionDir,
		authorized: make(chan struct{}),
	}
	s.gotd = telegram.NewGotd(cfg.Telegram.APIID, cfg.Telegram.APIHash, cfg.Telegram.SessionDir,
		telegram.NewTerminalAuth(cfg.Telegram.Phone), logger.Named("telegram"))
	s.cache = cache.New(s.gotd, storage, cache.Options{
		FullInfoTTL:          cfg.Cache.FullInfoTTL.Std(),
		FullInfoTTLBot:       cfg.Cache.FullInfoTTLBot.Std(),
		RepairDelay:          cfg.Cache.RepairDelay.Std(),
		DemoteDelay:          cfg.Cache.DemoteDelay.Std(),
		ContactsSyncInterval: cfg.Cache.ContactsSyncInterval.Std(),
		CloseTimeout:         cfg.Cache.CloseTimeout.Std(),
		Logger:               logger,
		Sink:                 s.hub,
	})
	s.gotd.SetHandler(s.cache)
	return s, nil
}

// run serves the cache and the connection until fn returns or ctx is done.
// onReady runs once the session is authorized.
func (s *session) run(ctx context.Context, onReady func(ctx context.Context, self domain.UserID), fn func(ctx context.Context) error) error {
	defer func() {
		if err := s.storage.Close(); err != nil {
			s.logger.Warn("Failed to close storage", zap.Error(err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	s.gotd.SetOnReady(func(self domain.UserID) {
		s.logger.Info("Authorized", zap.Stringer("self", self))
		s.authOnce.Do(func() { close(s.authorized) })
		if onReady != nil {
			g.Go(func() error {
				onReady(ctx, self)
				return nil
			})
		}
	})

	g.Go(func() error {
		return s.cache.Run(ctx)
	})
	g.Go(func() error {
		return s.gotd.Run(ctx)
	})
	g.Go(func() error {
		defer cancel()
		return fn(ctx)
	})

	err := g.Wait()
	s.cache.Close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// syncContacts is the usual onReady hook.
func (s *session) syncContacts(ctx context.Context, _ domain.UserID) {
	if err := s.cache.SyncContacts(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("Failed to sync contacts", zap.Error(err))
	}
}

// hasSession reports whether a saved login exists, so connecting will not
// prompt on the terminal.
func (s *session) hasSession() bool {
	_, err := os.Stat(filepath.Join(s.sessionDir, "session.json"))
	return err == nil
}

// waitAuthorized blocks until the login completed.
func (s *session) waitAuthorized(ctx context.Context) error {
	select {
	case <-s.authorized:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
