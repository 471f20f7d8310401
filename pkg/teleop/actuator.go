package teleop

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/gwillem/csvarm/pkg/logging"
	"github.com/gwillem/csvarm/pkg/robot"
)

// LogActuator is a dry-run actuator: it logs each action at debug level and
// remembers the last one.
type LogActuator struct {
	logger *zap.SugaredLogger

	mu   sync.Mutex
	sent int
	last robot.Action
}

// NewLogActuator returns a LogActuator writing to logger.
func NewLogActuator(logger *zap.SugaredLogger) *LogActuator {
	return &LogActuator{logger: logging.OrNop(logger)}
}

func (a *LogActuator) SendAction(_ context.Context, action robot.Action) error {
	a.mu.Lock()
	a.sent++
	a.last = action
	a.mu.Unlock()
	a.logger.Debugw("action", "values", action.Map())
	return nil
}

// Sent returns how many actions were received and the last one.
func (a *LogActuator) Sent() (int, robot.Action) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sent, a.last
}
