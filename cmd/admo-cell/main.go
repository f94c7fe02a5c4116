// Command admo-cell runs one cell of the autonomous defense mesh:
// federation handshake, observation ingest, belief aggregation,
// conflict detection, arbitration, approval, the execution safety
// gate, identity containment, and the read-only visibility API, all
// wired against one cell's in-memory stores and a shared audit log.
// Grounded on cmd/helm/main.go's subsystem-wiring shape: config load,
// construct every service, start HTTP in a goroutine, wait on a signal
// channel.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/slucerodev/admo-core/pkg/approval"
	"github.com/slucerodev/admo-core/pkg/arbitration"
	"github.com/slucerodev/admo-core/pkg/audit"
	"github.com/slucerodev/admo-core/pkg/belief"
	"github.com/slucerodev/admo-core/pkg/clock"
	"github.com/slucerodev/admo-core/pkg/config"
	"github.com/slucerodev/admo-core/pkg/conflict"
	"github.com/slucerodev/admo-core/pkg/containment"
	"github.com/slucerodev/admo-core/pkg/contracts"
	"github.com/slucerodev/admo-core/pkg/federation/handshake"
	"github.com/slucerodev/admo-core/pkg/gate"
	"github.com/slucerodev/admo-core/pkg/idgen"
	"github.com/slucerodev/admo-core/pkg/ingest"
	"github.com/slucerodev/admo-core/pkg/ratelimit"
	"github.com/slucerodev/admo-core/pkg/store"
	"github.com/slucerodev/admo-core/pkg/visibility"
)

func main() {
	os.Exit(run())
}

// cell bundles every subsystem this process hosts, so the tick loop
// and the HTTP handlers share one set of live services.
type cell struct {
	cfg         *config.Config
	flags       *config.Flags
	log         *audit.Log
	clock       clock.Clock
	handshake   *handshake.Controller
	ingest      *ingest.Pipeline
	belief      *belief.Aggregator
	conflict    *conflict.Detector
	arbitration *arbitration.Service
	approval    *approval.Service
	gate        *gate.Gate
	recommender *containment.Recommender
	containment *containment.Service
	visibility  *visibility.Server
}

func run() int {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	cfg := config.Load()
	logger.Info("admo-cell starting", "cell_id", cfg.CellID, "tenant_id", cfg.TenantID)

	c, err := newCell(cfg)
	if err != nil {
		logger.Error("failed to wire cell", "error", err)
		return 1
	}

	mux := http.NewServeMux()
	c.visibility.Routes(mux)
	c.registerFederationRoutes(mux)
	c.registerArbitrationRoutes(mux)
	c.registerContainmentRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	server := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
	go func() {
		logger.Info("visibility api listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", "error", err)
		}
	}()

	stop := make(chan struct{})
	go c.tickLoop(cfg.TickerInterval, stop)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	logger.Info("admo-cell shutting down")
	close(stop)
	_ = server.Close()
	return 0
}

// newCell constructs every subsystem against one shared clock, audit
// log, and feature-flag registry, the same one-process-one-wiring-pass
// shape as cmd/helm/main.go's runServer.
func newCell(cfg *config.Config) (*cell, error) {
	clk := clock.NewSystem()
	flags := cfg.FlagRegistry()
	ids := idgen.NewFactory()
	log := audit.New(ids, clk)

	identities := store.NewIdentityStore()
	sessions := store.NewSessionStore()
	observations := store.NewObservationStore()
	beliefs := store.NewBeliefStore()
	arbitrations := store.NewArbitrationStore()
	approvals := store.NewApprovalStore()
	intents := store.NewIntentStore()
	applied := store.NewAppliedStore()
	nonces := store.NewNonceStore(cfg.NonceTTL)
	limiter := ratelimit.New(50, 100, 10*time.Minute)

	ingestPipeline, err := ingest.New(flags, identities, observations, nonces, limiter, log, clk, true, cfg.MaxClockSkew)
	if err != nil {
		return nil, fmt.Errorf("admo-cell: ingest pipeline: %w", err)
	}

	beliefAggregator := belief.New(flags, observations, beliefs, log)

	keys, err := approval.NewInMemoryKeySet()
	if err != nil {
		return nil, fmt.Errorf("admo-cell: approval key set: %w", err)
	}
	approvalService := approval.New(approvals, keys, ids, log, clk)

	conflictDetector := conflict.New(flags, arbitrations, approvalService, ids, log, clk)
	arbitrationService := arbitration.New(flags, arbitrations, approvalService, beliefs, log, clk)
	safetyGate := gate.New(log, clk)

	recommender, err := containment.NewRecommender(observations, clk, log, time.Hour)
	if err != nil {
		return nil, fmt.Errorf("admo-cell: containment recommender: %w", err)
	}
	containmentService := containment.NewService(intents, applied, approvalService, safetyGate, containment.NoopEffector{}, ids, log, clk)

	handshakeController := handshake.New(sessions, nonces, log, clk, contracts.DefaultHandshakeConfig())

	visibilityServer := visibility.New(identities, observations, beliefs, arbitrations, approvals, clk)

	return &cell{
		cfg: cfg, flags: flags, log: log, clock: clk,
		handshake: handshakeController, ingest: ingestPipeline, belief: beliefAggregator,
		conflict: conflictDetector, arbitration: arbitrationService, approval: approvalService,
		gate: safetyGate, recommender: recommender, containment: containmentService,
		visibility: visibilityServer,
	}, nil
}

// tickLoop drives every periodic sweep this cell owns: belief
// aggregation over newly ingested observations, conflict detection
// over freshly aggregated beliefs, approval expiry, and containment
// auto-revert. Mirrors cmd/helm/main.go's background-goroutine pattern,
// generalized from a single health server to every subsystem's tick.
func (c *cell) tickLoop(interval time.Duration, stop <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *cell) tick() {
	now := c.clock.Now()

	beliefs, err := c.belief.Aggregate(store.ObservationFilter{Since: now.Add(-1 * time.Hour)})
	if err != nil {
		log.Printf("admo-cell: belief aggregation: %v", err)
	} else if len(beliefs) > 0 {
		if _, err := c.conflict.Detect(beliefs); err != nil {
			log.Printf("admo-cell: conflict detection: %v", err)
		}
	}

	recs, err := c.recommender.Generate("")
	if err != nil {
		log.Printf("admo-cell: containment recommend: %v", err)
	}
	for _, rec := range recs {
		if _, _, err := c.containment.CreateIntent(rec, "recommender"); err != nil {
			log.Printf("admo-cell: containment intent for %s: %v", rec.RecommendationID, err)
		}
	}

	expired := c.approval.ExpirePending(now)
	reverted := c.containment.Tick()
	expiredSessions, expiredLocks := c.handshake.Tick()
	if expired > 0 || reverted > 0 || expiredSessions > 0 || expiredLocks > 0 {
		log.Printf("admo-cell: tick: %d approvals expired, %d containment windows reverted, %d handshake sessions expired, %d correlation locks released", expired, reverted, expiredSessions, expiredLocks)
	}
}
