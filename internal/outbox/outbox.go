// Package outbox drains the outbound delivery queue. A pump goroutine
// wakes on a fixed interval, claims due queued rows and POSTs each
// bundle to its target host with a signed request. Settled rows are
// purged on a cron schedule.
package outbox

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adhocore/gronx"

	"tezrelay/pkg/config"
	"tezrelay/pkg/federation"
	"tezrelay/pkg/logger"
	"tezrelay/pkg/models"
	"tezrelay/pkg/store"
	"tezrelay/pkg/telemetry"
)

const claimBatch = 50

// Pump drives outbound federation deliveries.
type Pump struct {
	Client *federation.Client
	Cfg    config.FederationConfig
}

// Start launches the pump loop and, when configured, the purge
// scheduler. Returns a cancel func stopping both.
func Start(ctx context.Context, client *federation.Client, cfg config.FederationConfig) (context.CancelFunc, error) {
	if !cfg.Enabled {
		logger.Info("outbox_disabled")
		return func() {}, nil
	}
	p := &Pump{Client: client, Cfg: cfg}

	ctx2, cancel := context.WithCancel(ctx)
	go p.run(ctx2)

	if cfg.PurgeCron != "" {
		if !gronx.IsValid(cfg.PurgeCron) {
			cancel()
			return nil, fmt.Errorf("invalid outbox purge cron expression: %s", cfg.PurgeCron)
		}
		go p.runPurgeScheduler(ctx2)
	}
	logger.Info("outbox_started", "interval", p.interval().String())
	return cancel, nil
}

func (p *Pump) interval() time.Duration {
	return p.Cfg.PumpInterval.OrDefault(5 * time.Second)
}

func (p *Pump) run(ctx context.Context) {
	t := time.NewTicker(p.interval())
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox_pump_stopping")
			return
		case <-t.C:
			if err := p.DrainOnce(ctx); err != nil {
				logger.Error("outbox_drain_error", "error", err.Error())
			}
		}
	}
}

// DrainOnce claims every due delivery and attempts each, serially per
// host. The claim orders rows by host then age, so deliveries to one
// target stay FIFO.
func (p *Pump) DrainOnce(ctx context.Context) error {
	due, err := store.ClaimDueDeliveries(ctx, time.Now().UTC(), claimBatch)
	if err != nil {
		return err
	}
	// A failed attempt parks every later delivery for the same host so
	// ordering survives the retry.
	skipHost := map[string]bool{}
	for _, dv := range due {
		if skipHost[dv.TargetHost] {
			p.requeue(ctx, dv)
			continue
		}
		if !p.attempt(ctx, dv) {
			skipHost[dv.TargetHost] = true
		}
	}
	return nil
}

// attempt delivers one bundle and settles the row. Reports whether the
// target host is still healthy.
func (p *Pump) attempt(ctx context.Context, dv models.OutboundDelivery) bool {
	status, err := p.Client.DeliverBundle(ctx, dv.TargetHost, []byte(dv.Bundle))
	attempts := dv.Attempts + 1
	now := time.Now().UTC()

	switch {
	case err == nil && (status == http.StatusOK || status == http.StatusMultiStatus):
		if serr := store.SettleDelivery(ctx, dv.ID, models.DeliverySent, attempts, now); serr != nil {
			logger.Error("outbox_settle_failed", "delivery", dv.ID, "error", serr.Error())
		}
		logger.Info("outbox_delivered", "delivery", dv.ID, "host", dv.TargetHost, "status", status)
		telemetry.CountOutbound("sent")
		return true

	case err == nil && status >= 400 && status < 500:
		// The peer rejected the bundle; retrying the same bytes cannot
		// succeed.
		if serr := store.SettleDelivery(ctx, dv.ID, models.DeliveryFailed, attempts, now); serr != nil {
			logger.Error("outbox_settle_failed", "delivery", dv.ID, "error", serr.Error())
		}
		logger.Warn("outbox_rejected", "delivery", dv.ID, "host", dv.TargetHost, "status", status)
		telemetry.CountOutbound("failed")
		return true

	default:
		maxAttempts := p.Cfg.MaxAttempts
		if maxAttempts <= 0 {
			maxAttempts = 10
		}
		if attempts >= maxAttempts {
			if serr := store.SettleDelivery(ctx, dv.ID, models.DeliveryFailed, attempts, now); serr != nil {
				logger.Error("outbox_settle_failed", "delivery", dv.ID, "error", serr.Error())
			}
			logger.Error("outbox_gave_up", "delivery", dv.ID, "host", dv.TargetHost, "attempts", attempts)
			telemetry.CountOutbound("failed")
			return false
		}
		next := now.Add(p.backoff(attempts))
		if serr := store.SettleDelivery(ctx, dv.ID, models.DeliveryQueued, attempts, next); serr != nil {
			logger.Error("outbox_settle_failed", "delivery", dv.ID, "error", serr.Error())
		}
		if err != nil {
			logger.Warn("outbox_attempt_failed", "delivery", dv.ID, "host", dv.TargetHost, "error", err.Error())
		} else {
			logger.Warn("outbox_attempt_failed", "delivery", dv.ID, "host", dv.TargetHost, "status", status)
		}
		telemetry.CountOutbound("retry")
		return false
	}
}

// requeue returns a claimed but unattempted row to the queue behind the
// host's current backoff horizon.
func (p *Pump) requeue(ctx context.Context, dv models.OutboundDelivery) {
	next := time.Now().UTC().Add(p.backoff(dv.Attempts + 1))
	if err := store.SettleDelivery(ctx, dv.ID, models.DeliveryQueued, dv.Attempts, next); err != nil {
		logger.Error("outbox_requeue_failed", "delivery", dv.ID, "error", err.Error())
	}
}

// backoff is exponential in the attempt count, capped by configuration.
func (p *Pump) backoff(attempts int) time.Duration {
	base := p.Cfg.BackoffBase.OrDefault(2 * time.Second)
	ceil := p.Cfg.BackoffCap.OrDefault(5 * time.Minute)
	d := base
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= ceil {
			return ceil
		}
	}
	if d > ceil {
		return ceil
	}
	return d
}

// runPurgeScheduler sleeps until each cron tick and removes settled
// rows older than the configured age.
func (p *Pump) runPurgeScheduler(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			logger.Info("outbox_purge_stopping")
			return
		default:
		}
		next, err := gronx.NextTickAfter(p.Cfg.PurgeCron, time.Now().UTC(), false)
		if err != nil {
			logger.Error("outbox_purge_nexttick_failed", "cron", p.Cfg.PurgeCron, "error", err.Error())
			select {
			case <-time.After(30 * time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case <-time.After(time.Until(next)):
			cutoff := time.Now().UTC().Add(-p.Cfg.PurgeAge.OrDefault(7 * 24 * time.Hour))
			n, err := store.PurgeSettledDeliveries(ctx, cutoff)
			if err != nil {
				logger.Error("outbox_purge_failed", "error", err.Error())
				continue
			}
			logger.Info("outbox_purged", "removed", n)
		case <-ctx.Done():
			logger.Info("outbox_purge_stopping")
			return
		}
	}
}
