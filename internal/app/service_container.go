package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/0xArchitect/ludo-backend/internal/auth"
	"github.com/0xArchitect/ludo-backend/internal/chain"
	"github.com/0xArchitect/ludo-backend/internal/clients"
	"github.com/0xArchitect/ludo-backend/internal/config"
	"github.com/0xArchitect/ludo-backend/internal/db"
	"github.com/0xArchitect/ludo-backend/internal/events"
	"github.com/0xArchitect/ludo-backend/internal/handlers"
	"github.com/0xArchitect/ludo-backend/internal/idempotency"
	"github.com/0xArchitect/ludo-backend/internal/middleware"
	"github.com/0xArchitect/ludo-backend/internal/repository"
	"github.com/0xArchitect/ludo-backend/internal/router"
	"github.com/0xArchitect/ludo-backend/internal/services"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// Mode selects which parts of the container are built
type Mode int

const (
	// ModeServe builds the HTTP API and every background task
	ModeServe Mode = iota
	// ModeWorker builds only what reconcile and reap need; no signer, no token verifier
	ModeWorker
)

// ServiceContainer owns every long-lived dependency of the ledger process
type ServiceContainer struct {
	Config *config.Config
	Logger logrus.FieldLogger

	// Storage
	DB    *gorm.DB
	Store repository.Store
	Cache idempotency.Cache

	// Chain
	Chain  *chain.Client
	Signer *chain.TypedDataSigner

	// Notifications
	NATSClient           *clients.NATSClient
	WebSocketPushService *services.WebSocketPushService
	Notifier             events.Notifier

	// Ledger services
	Ledger            *services.BalanceLedger
	Settlement        *services.WithdrawalSettlement
	Authorizer        *services.WithdrawalAuthorizer
	Reconciler        *services.EventReconciler
	Reaper            *services.StalePendingReaper
	AccountService    *services.AccountService
	MonitoringService *services.MonitoringService

	Verifier *auth.JWTVerifier

	mode    Mode
	closers []func()
}

// NewServiceContainer builds the container. On error everything opened so far is closed.
func NewServiceContainer(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger, mode Mode) (_ *ServiceContainer, err error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	if err := cfg.RequireChain(); err != nil {
		return nil, err
	}
	if mode == ModeServe {
		if err := cfg.RequireSigner(); err != nil {
			return nil, err
		}
	}

	logger.Info("🚀 Initializing Service Container...")
	c := &ServiceContainer{Config: cfg, Logger: logger, mode: mode}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if err := c.initStorage(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if err := c.initChain(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize chain client: %w", err)
	}
	c.initNotifiers()
	if err := c.initServices(); err != nil {
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	logger.Info("✅ Service Container initialized successfully")
	return c, nil
}

func (c *ServiceContainer) initStorage(ctx context.Context) error {
	gdb, err := db.Open(ctx, c.Config.Database, c.Logger)
	if err != nil {
		return err
	}
	c.DB = gdb
	c.closers = append(c.closers, func() {
		if err := db.Close(gdb); err != nil {
			c.Logger.WithError(err).Warn("⚠️ Failed to close database")
		}
	})
	c.Store = repository.NewStore(gdb)

	ttl := c.Config.Withdraw.IdempotencyTTL
	if addr := c.Config.Redis.Addr(); addr != "" {
		cache, err := idempotency.NewRedisCache(ctx, addr, c.Config.Redis.Password, c.Config.Redis.DB)
		if err != nil {
			return err
		}
		c.Cache = cache
		c.Logger.WithField("addr", addr).Info("✅ Idempotency cache: redis")
	} else {
		cache, err := idempotency.NewMemoryCache(ctx, ttl)
		if err != nil {
			return err
		}
		c.Cache = cache
		c.Logger.Warn("⚠️ Idempotency cache: in-process (single replica only)")
	}
	cache := c.Cache
	c.closers = append(c.closers, func() { _ = cache.Close() })
	return nil
}

func (c *ServiceContainer) initChain(ctx context.Context) error {
	bc := c.Config.Blockchain
	pool := common.HexToAddress(bc.PoolAddress)

	client, err := chain.Dial(ctx, bc.RPCURL, chain.ClientOptions{
		Pool:       pool,
		StartBlock: bc.StartBlock,
		RPCTimeout: bc.RPCTimeout,
		Logger:     c.Logger,
	})
	if err != nil {
		return err
	}
	c.Chain = client
	c.closers = append(c.closers, client.Close)

	if c.mode != ModeServe {
		return nil
	}
	signer, err := chain.NewTypedDataSigner(bc.PrivateKey, chain.Domain{
		Name:              bc.DomainName,
		Version:           bc.DomainVersion,
		ChainID:           bc.ChainID,
		VerifyingContract: pool,
	})
	if err != nil {
		return err
	}
	c.Signer = signer
	c.Logger.WithField("signer", signer.Address().Hex()).Info("🔑 Withdrawal signer loaded")
	return nil
}

// initNotifiers wires NATS and websocket push. Both are optional and best effort.
func (c *ServiceContainer) initNotifiers() {
	var fanout events.Fanout

	if c.Config.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(c.Config.NATS, c.Logger)
		if err != nil {
			c.Logger.WithError(err).Warn("⚠️ NATS unavailable, ledger events will not be published")
		} else {
			c.NATSClient = natsClient
			c.closers = append(c.closers, natsClient.Close)
			fanout = append(fanout, natsClient)
		}
	}

	if c.mode == ModeServe {
		c.WebSocketPushService = services.NewWebSocketPushService(originChecker(c.Config.CORS), c.Logger)
		c.closers = append(c.closers, c.WebSocketPushService.Close)
		fanout = append(fanout, c.WebSocketPushService)
	}

	if len(fanout) == 0 {
		c.Notifier = events.Nop{}
		return
	}
	c.Notifier = fanout
}

func (c *ServiceContainer) initServices() error {
	cfg := c.Config

	c.Ledger = services.NewBalanceLedger(c.Store)
	c.Settlement = services.NewWithdrawalSettlement(c.Ledger, c.Store, c.Cache, c.Notifier, c.Logger)
	c.Reconciler = services.NewEventReconciler(c.Chain, c.Ledger, c.Store, c.Settlement, c.Notifier,
		services.EventReconcilerConfig{
			StartBlock:    cfg.Blockchain.StartBlock,
			MaxBlockRange: cfg.Blockchain.MaxBlockRange,
		}, c.Logger)
	c.Reaper = services.NewStalePendingReaper(c.Chain, c.Store, c.Settlement,
		services.StalePendingReaperConfig{
			Interval:       cfg.Reaper.Interval,
			PendingTimeout: cfg.Reaper.PendingTimeout,
			BatchSize:      cfg.Reaper.BatchSize,
		}, c.Logger)
	c.AccountService = services.NewAccountService(c.Store)
	c.MonitoringService = services.NewMonitoringService(c.DB, c.Store, cfg.Monitoring.Interval, c.Logger)

	if c.mode != ModeServe {
		return nil
	}

	c.Authorizer = services.NewWithdrawalAuthorizer(c.Ledger, c.Cache, c.Signer, auth.NewTOTPVerifier(), c.Notifier,
		services.WithdrawalAuthorizerConfig{
			IdempotencyTTL:    cfg.Withdraw.IdempotencyTTL,
			RequestScopedKeys: cfg.Withdraw.RequestScopedIdempotency,
		}, c.Logger)

	verifier, err := auth.NewJWTVerifierFromFile(cfg.Auth.JWTPublicKeyPath, cfg.Auth.Issuer)
	if err != nil {
		return err
	}
	c.Verifier = verifier
	return nil
}

// Tasks are the background loops: one reconciler per event stream, the reaper and monitoring
func (c *ServiceContainer) Tasks() []*services.PeriodicTask {
	interval := c.Config.Reconciler.PollInterval
	return []*services.PeriodicTask{
		c.Reconciler.Loop(chain.EventKindDeposit, interval),
		c.Reconciler.Loop(chain.EventKindWithdrawal, interval),
		c.Reaper.Task(),
		c.MonitoringService.Task(),
	}
}

// Router builds the HTTP handler. Only valid in ModeServe.
func (c *ServiceContainer) Router() *gin.Engine {
	return router.SetupRouter(router.Dependencies{
		Ledger:    handlers.NewLedgerHandler(c.AccountService, c.Authorizer, c.Logger),
		WebSocket: handlers.NewWebSocketHandler(c.WebSocketPushService, c.Logger),
		Verifier:  c.Verifier,
		Throttle:  middleware.NewUserThrottle(c.Config.Withdraw.ThrottleInterval, c.Logger),
		CORS:      c.Config.CORS,
		AdminIPs:  c.Config.Admin.AllowedIPs,
		Logger:    c.Logger,
	})
}

// Run serves HTTP and runs the background tasks until ctx is done or the server fails
func (c *ServiceContainer) Run(ctx context.Context) error {
	if c.mode != ModeServe {
		return errors.New("service container was not built for serving")
	}

	srv := &http.Server{
		Addr:              c.Config.Server.Addr(),
		Handler:           c.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		c.Logger.WithField("addr", srv.Addr).Info("🌐 HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	tasks := c.Tasks()
	for _, t := range tasks {
		t.Start(gctx)
	}

	g.Go(func() error {
		<-gctx.Done()
		c.Logger.Info("🛑 Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.Config.Server.ShutdownTimeout)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		for _, t := range tasks {
			t.Stop()
		}
		return err
	})

	return g.Wait()
}

// Close releases resources in reverse order of acquisition
func (c *ServiceContainer) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// originChecker mirrors the CORS allow list for websocket upgrades
func originChecker(cfg config.CORSConfig) func(string) bool {
	if len(cfg.AllowedOrigins) == 0 {
		return nil
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return nil
		}
		allowed[o] = struct{}{}
	}
	return func(origin string) bool {
		_, ok := allowed[origin]
		return ok
	}
}
