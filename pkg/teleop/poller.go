package teleop

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/gwillem/csvarm/pkg/logging"
	"github.com/gwillem/csvarm/pkg/motion"
)

// Poller keeps a motion.Register filled with the latest reading of a live
// arm, on its own cadence and goroutine.
type Poller struct {
	reader   JointReader
	register *motion.Register
	hz       int
	clock    clock.Clock
	logger   *zap.SugaredLogger

	failures int
}

// PollerConfig holds configuration for a Poller.
type PollerConfig struct {
	Hz     int
	Clock  clock.Clock
	Logger *zap.SugaredLogger
}

// NewPoller creates a poller reading from reader into register.
func NewPoller(reader JointReader, register *motion.Register, cfg PollerConfig) *Poller {
	if cfg.Hz <= 0 {
		cfg.Hz = 60
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	return &Poller{
		reader:   reader,
		register: register,
		hz:       cfg.Hz,
		clock:    cfg.Clock,
		logger:   logging.OrNop(cfg.Logger),
	}
}

// Poll reads once and stores the reading. A failed read leaves the register
// holding the previous vector.
func (p *Poller) Poll(ctx context.Context) error {
	joints, err := p.reader.ReadJoints(ctx)
	if err != nil {
		return fmt.Errorf("poll live arm: %w", err)
	}
	p.register.Store(joints)
	return nil
}

// Run polls until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := p.clock.Ticker(time.Second / time.Duration(p.hz))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.Poll(ctx); err != nil {
				p.failures++
				// a flaky bus can fail every tick; keep the log readable
				if p.failures == 1 || p.failures%100 == 0 {
					p.logger.Warnw("live read failed", "failures", p.failures, "error", err)
				}
			}
		}
	}
}

// Seed fills register from reader once, so the live fallback starts at the
// arm's actual pose rather than at zero.
func Seed(ctx context.Context, reader JointReader, register *motion.Register) error {
	joints, err := reader.ReadJoints(ctx)
	if err != nil {
		return fmt.Errorf("seed live joints: %w", err)
	}
	register.Store(joints)
	return nil
}
