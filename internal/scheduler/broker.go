package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// BrokerSweeper periodically pings every known peer so a broker can
// detect and log unreachable executors between dispatch rounds. A broker
// never calls Reserve/Steal/Exec itself; it only drives dispatch
// decisions external to this package, so its only scheduler-owned duty
// is this health sweep.
type BrokerSweeper struct {
	sched *Scheduler
	cron  *cron.Cron
}

// NewBrokerSweeper builds a sweeper that pings every peer on the given
// cron expression (seconds-precision, via cron.WithSeconds()).
func NewBrokerSweeper(sched *Scheduler, spec string) (*BrokerSweeper, error) {
	c := cron.New(cron.WithSeconds())
	bs := &BrokerSweeper{sched: sched, cron: c}
	if _, err := c.AddFunc(spec, bs.sweep); err != nil {
		return nil, err
	}
	return bs, nil
}

// Start begins the periodic sweep.
func (bs *BrokerSweeper) Start() { bs.cron.Start() }

// Stop halts the sweep, waiting up to the given timeout for any
// in-flight sweep to finish.
func (bs *BrokerSweeper) Stop(ctx context.Context) error {
	stopCtx := bs.cron.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (bs *BrokerSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for name, h := range bs.sched.Peers() {
		if err := h.Ping(ctx); err != nil {
			slog.Warn("broker sweep: peer unreachable", "peer", name, "error", err)
			continue
		}
		n, err := h.Transport.Len(ctx)
		if err != nil {
			slog.Warn("broker sweep: peer length query failed", "peer", name, "error", err)
			continue
		}
		slog.Debug("broker sweep: peer healthy", "peer", name, "shared_len", n)
	}
}
