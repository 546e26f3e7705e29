package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"threadsync/internal/api"
	"threadsync/internal/cache"
	"threadsync/internal/config"
	"threadsync/internal/engine"
	"threadsync/internal/ledger"
	"threadsync/internal/logging"
	"threadsync/internal/run"
	"threadsync/internal/session"
	"threadsync/internal/threads"
	"threadsync/internal/upload"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// appClient bundles the wired subsystems behind one lifecycle.
type appClient struct {
	cfg      *config.Config
	log      *slog.Logger
	store    *threads.Store
	ledger   *ledger.Ledger
	cache    *cache.Cache
	api      *api.Client
	session  *session.Client
	engine   *engine.Engine
	uploader *upload.Uploader
	starter  *run.Starter
	scope    string
}

// withClient builds the full client stack, runs fn, and tears the
// stack down afterwards. The session is not connected yet; commands
// that need the socket call connect themselves.
func (c *commandContext) withClient(fn func(*appClient) error) error {
	client, err := c.buildClient()
	if err != nil {
		return err
	}
	defer client.close()
	return fn(client)
}

func (c *commandContext) buildClient() (*appClient, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("initialize logging: %w", err)
	}

	credential, err := cfg.Credential()
	if err != nil {
		return nil, err
	}
	scope := engine.OwnerScope(credential)

	store := threads.NewStore(logger)
	led := ledger.New()

	diskCache, err := cache.Open(cfg.Paths.CacheDir)
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}

	httpClient := api.New(cfg.Server.HTTPURL, credential, nil)

	socket := session.New(session.Options{
		URL:                cfg.Server.SocketURL,
		Credential:         credential,
		HandshakeTimeout:   cfg.HandshakeTimeout(),
		BackoffBase:        cfg.BackoffBase(),
		BackoffMax:         cfg.BackoffMax(),
		BackoffMaxAttempts: cfg.Sync.BackoffMaxAttempts,
		BackoffJitter:      cfg.Sync.BackoffJitter,
		Stamps: func() map[string]threads.Stamp {
			stamps := make(map[string]threads.Stamp)
			for _, t := range store.Threads() {
				if !t.Local() {
					stamps[t.ID] = t.Server
				}
			}
			return stamps
		},
		Logger: logger,
	})

	eng := engine.New(engine.Options{
		Socket:  socket,
		Store:   store,
		Ledger:  led,
		Cache:   diskCache,
		Backend: httpClient,
		Scope:   scope,
		Logger:  logger,
	})
	eng.Start()

	uploader := upload.New(socket, upload.Options{
		BeginTimeout:       cfg.UploadBeginTimeout(),
		CompleteTimeout:    cfg.UploadCompleteTimeout(),
		MaxChunkBytes:      int64(cfg.Sync.MaxChunkBytes),
		BufferedLimitBytes: cfg.Sync.BufferedLimitBytes,
		ProgressInterval:   cfg.ProgressInterval(),
		OnProgress:         terminalProgress(),
		Logger:             logger,
	})

	starter := run.New(socket, store, led, logger)

	return &appClient{
		cfg:      cfg,
		log:      logger,
		store:    store,
		ledger:   led,
		cache:    diskCache,
		api:      httpClient,
		session:  socket,
		engine:   eng,
		uploader: uploader,
		starter:  starter,
		scope:    scope,
	}, nil
}

func (a *appClient) close() {
	a.session.Disconnect(websocket.CloseNormalClosure, "client exiting")
	a.engine.Stop()
	if err := a.cache.Close(); err != nil {
		a.log.Warn("failed to close cache", logging.Args(logging.Error(err))...)
	}
}

// connect restores cached state, brings the session up, and binds the
// active thread.
func (a *appClient) connect(timeout time.Duration) error {
	ctx, cancel := commandTimeout(timeout)
	defer cancel()
	if err := a.engine.Restore(ctx); err != nil {
		a.log.Warn("failed to restore cached state", logging.Args(logging.Error(err))...)
	}
	a.session.Bind(a.store.ActiveThreadID())
	a.session.Connect()
	if !a.session.WaitForReady(timeout) {
		return fmt.Errorf("could not reach %s within %s", a.cfg.Server.SocketURL, timeout)
	}
	return nil
}
