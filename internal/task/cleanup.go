package task

import (
	"fmt"

	"github.com/robfig/cron/v3"
)

// Start schedules the periodic cleanup of expired tasks. It is a no-op when
// the manager is already started or shut down.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || m.cron != nil {
		return nil
	}

	c := cron.New()
	schedule := fmt.Sprintf("@every %s", m.cfg.CleanupInterval)
	if _, err := c.AddFunc(schedule, func() { m.CleanupExpired() }); err != nil {
		return fmt.Errorf("failed to schedule task cleanup: %w", err)
	}
	c.Start()
	m.cron = c

	m.logger.Info("task cleanup scheduled",
		"interval", m.cfg.CleanupInterval.String(),
		"retention", m.cfg.Retention.String())
	return nil
}

// CleanupExpired removes terminal tasks whose last update is older than the
// retention period and returns how many were removed. Pending and
// processing tasks are never removed.
func (m *Manager) CleanupExpired() int {
	cutoff := m.now().Add(-m.cfg.Retention)

	m.mu.Lock()
	removed := 0
	for id, e := range m.tasks {
		if e.task.expiredBy(cutoff) {
			delete(m.tasks, id)
			removed++
		}
	}
	remaining := len(m.tasks)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Info("cleaned up expired tasks", "removed", removed, "remaining", remaining)
	}
	return removed
}
