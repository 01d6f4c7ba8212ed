// Command executor runs one dagcore executor (or broker) process: it
// opens the node-local metadata store and chunk pool, connects to the
// peer-channel transport, serves its shared deque to peers, exposes
// /health and /metrics, and waits for a shutdown signal. main itself
// neither calls Init nor runs the reserve/steal/keep/exec loop.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	nats "github.com/nats-io/nats.go"

	"github.com/taskmesh/dagcore/internal/chunkpool"
	"github.com/taskmesh/dagcore/internal/dag"
	"github.com/taskmesh/dagcore/internal/peer"
	"github.com/taskmesh/dagcore/internal/queue"
	"github.com/taskmesh/dagcore/internal/resilience"
	"github.com/taskmesh/dagcore/internal/schederr"
	"github.com/taskmesh/dagcore/internal/scheduler"
	"github.com/taskmesh/dagcore/internal/store"
	"github.com/taskmesh/dagcore/internal/telemetry"
)

func main() {
	service := "dagcore-executor"
	telemetry.InitLogging(service)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTrace := telemetry.InitTracer(ctx, service)
	defer telemetry.Flush(context.Background(), shutdownTrace)

	metricsHandler, meterProvider, meter, err := telemetry.InitMetrics(service)
	if err != nil {
		slog.Error("metrics init failed", "error", err)
		os.Exit(1)
	}
	defer func() { _ = meterProvider.Shutdown(context.Background()) }()

	cfg := configFromEnv()

	dbPath := envOr("DAGCORE_DB_PATH", filepath.Join(os.TempDir(), cfg.Name+".meta.db"))
	metaStore, err := store.Open(dbPath, meter, 1000, 30*time.Minute)
	if err != nil {
		slog.Error("metadata store open failed", "error", err)
		os.Exit(1)
	}
	defer metaStore.Close()

	chunkDir := envOr("DAGCORE_CHUNK_DIR", filepath.Join(os.TempDir(), cfg.Name+".chunks"))
	if err := os.MkdirAll(chunkDir, 0o755); err != nil {
		slog.Error("chunk dir create failed", "error", err)
		os.Exit(1)
	}
	pool := chunkpool.NewDiskPool(chunkDir, meter)

	natsURL := envOr("DAGCORE_NATS_URL", nats.DefaultURL)
	nc, err := nats.Connect(natsURL)
	if err != nil {
		slog.Error("nats connect failed", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	wake := make(chan struct{}, 1)
	selfShared := queue.NewShared(cfg.ShareLimit)
	srv := peer.NewServer(nc, cfg.Name, selfShared, wake)
	if err := srv.Start(); err != nil {
		slog.Error("peer server start failed", "error", err)
		os.Exit(1)
	}
	defer srv.Stop()

	peers := make(map[string]*peer.Handle)
	for _, name := range cfg.PeerNames {
		breaker := resilience.NewCircuitBreaker(meter, 30*time.Second, 6, 5, 0.5, 10*time.Second, 3)
		limiter := resilience.NewRateLimiter(meter, 50, 100)
		transport := peer.NewNATSTransport(nc, name, 2*time.Second, breaker, limiter, meter)
		peers[name] = &peer.Handle{Name: name, Transport: transport}
	}

	sched, err := scheduler.New(cfg, metaStore, pool, peers, meter)
	if err != nil {
		slog.Error("scheduler construction failed", "error", err)
		os.Exit(1)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/metrics", metricsHandler)
	httpSrv := &http.Server{Addr: envOr("DAGCORE_HTTP_ADDR", ":8080"), Handler: mux}
	go func() {
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			cancel()
		}
	}()

	var sweeper *scheduler.BrokerSweeper
	if cfg.Role == scheduler.RoleBroker {
		sweeper, err = scheduler.NewBrokerSweeper(sched, "*/10 * * * * *")
		if err != nil {
			slog.Error("broker sweeper construction failed", "error", err)
			os.Exit(1)
		}
		sweeper.Start()
	}

	slog.Info("executor started", "name", cfg.Name, "role", cfg.Role)
	<-ctx.Done()
	slog.Info("shutdown initiated")

	if sweeper != nil {
		shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
		_ = sweeper.Stop(shutdownCtx)
		c()
	}
	shutdownCtx, c := context.WithTimeout(context.Background(), 5*time.Second)
	_ = httpSrv.Shutdown(shutdownCtx)
	c()
	slog.Info("shutdown complete")
}

// RunToCompletion drives the reserve/steal/keep/exec loop until root's
// result is published or ctx is cancelled. It expects sched.Init(ctx, root)
// to have been called already. main does not call it, and as part of
// package main it cannot be imported by another package.
func RunToCompletion(ctx context.Context, sched *scheduler.Scheduler, root dag.TaskID, wake <-chan struct{}) error {
	for {
		if done, err := sched.HasResult(ctx, root); err != nil {
			return err
		} else if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		task, err := sched.Reserve(ctx)
		if err != nil {
			if !errors.Is(err, schederr.ErrNoTask) {
				return err
			}
			stolen, _, stealErr := sched.StealAny(ctx)
			if stealErr == nil {
				if _, err := sched.Keep(ctx, stolen, 1, true); err != nil {
					return err
				}
				continue
			}
			select {
			case <-wake:
			case <-time.After(5 * time.Millisecond):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}

		if !sched.IsExpanded(task) {
			if _, err := sched.Keep(ctx, task, 1, true); err != nil {
				return err
			}
			continue
		}

		runnable, err := sched.Runnable(ctx, task)
		if err != nil {
			return err
		}
		if !runnable {
			sched.StealAny(ctx) //nolint:errcheck // best-effort progress nudge
			continue
		}

		if err := sched.Exec(ctx, task); err != nil {
			return fmt.Errorf("exec %x: %w", task, err)
		}
		sched.Release(task, true)
	}
}

func configFromEnv() scheduler.Config {
	role := scheduler.RoleExecutor
	if strings.EqualFold(os.Getenv("DAGCORE_ROLE"), "broker") {
		role = scheduler.RoleBroker
	}
	cfg := scheduler.DefaultConfig(envOr("DAGCORE_NAME", "executor0"), role)
	if v := os.Getenv("DAGCORE_SHARE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ShareLimit = n
		}
	}
	if v := os.Getenv("DAGCORE_HELP_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HelpThreshold = n
		}
	}
	cfg.Debug = os.Getenv("DAGCORE_DEBUG") == "1"
	cfg.PeerNames = splitNonEmpty(os.Getenv("DAGCORE_PEERS"), ",")
	return cfg
}

func splitNonEmpty(s, sep string) []string {
	var out []string
	for _, part := range strings.Split(s, sep) {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
