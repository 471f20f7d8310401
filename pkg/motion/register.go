package motion

import (
	"sync"
	"time"

	"github.com/gwillem/csvarm/pkg/robot"
)

// LiveSource supplies the latest live joint reading without blocking.
type LiveSource interface {
	Snapshot() robot.JointVector
}

// Register holds the most recent live joint vector. Writers replace the whole
// vector; readers always see a complete one.
type Register struct {
	mu      sync.RWMutex
	joints  robot.JointVector
	updated time.Time
}

// NewRegister returns a register holding initial.
func NewRegister(initial robot.JointVector) *Register {
	return &Register{joints: initial}
}

// Store replaces the held vector.
func (r *Register) Store(joints robot.JointVector) {
	r.mu.Lock()
	r.joints = joints
	r.updated = time.Now()
	r.mu.Unlock()
}

// Snapshot returns the held vector.
func (r *Register) Snapshot() robot.JointVector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.joints
}

// Updated returns when Store was last called, or the zero time if never.
func (r *Register) Updated() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.updated
}
