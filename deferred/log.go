package deferred

import (
	"sync"

	"go.uber.org/zap"
)

// onceLog reports each distinct warning a single time.
type onceLog struct {
	log *zap.Logger

	mu   sync.Mutex
	seen map[string]bool
}

func newOnceLog(l *zap.Logger) *onceLog {
	return &onceLog{log: l, seen: map[string]bool{}}
}

// Warn logs msg unless a warning with the same key was logged before.
func (o *onceLog) Warn(key, msg string, fields ...zap.Field) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.seen[key] {
		return
	}
	o.seen[key] = true
	o.log.Warn(msg, fields...)
}
