// Package scheduler runs recurring background jobs (feed ingestion, idle
// session cleanup) on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/robfig/cron/v3"
)

// Job is one recurring unit of work
type Job func(ctx context.Context)

// Manager schedules and executes background jobs
type Manager struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	mutex  sync.Mutex
	names  []string
}

// NewManager creates a stopped Manager; call Start after adding jobs
func NewManager() *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cron:   cron.New(),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Add schedules a named job with a cron expression
func (m *Manager) Add(spec, name string, job Job) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, err := m.cron.AddFunc(spec, func() {
		log.Printf("[SCHEDULER]: running job %s", name)
		job(m.ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule job %s: %w", name, err)
	}

	m.names = append(m.names, name)
	return nil
}

// Start begins executing scheduled jobs
func (m *Manager) Start() {
	m.cron.Start()
	log.Printf("[SCHEDULER]: started with %d jobs", len(m.names))
}

// Stop gracefully stops the manager and cancels running jobs
func (m *Manager) Stop() {
	m.cancel()
	m.cron.Stop()
}
