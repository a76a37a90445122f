package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager holds registered checkers and the last results of the
// background loop.
type Manager struct {
	mu          sync.RWMutex
	checkers    map[string]Checker
	lastResults map[string]CheckResult
	interval    time.Duration
	stopCh      chan struct{}
	started     bool
	logger      *zap.Logger
}

func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		checkers:    make(map[string]Checker),
		lastResults: make(map[string]CheckResult),
		interval:    30 * time.Second,
		logger:      logger,
	}
}

// RegisterChecker registers a health check
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := c.Name()
	if name == "" {
		return fmt.Errorf("checker name cannot be empty")
	}
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("checker %s already registered", name)
	}
	m.checkers[name] = c
	m.logger.Info("Health checker registered", zap.String("name", name), zap.Bool("critical", c.IsCritical()))
	return nil
}

// Names returns the registered checker names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for n := range m.checkers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// GetDetailedHealth runs every check concurrently.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	start := time.Now()
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg  sync.WaitGroup
		rmu sync.Mutex
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			r := m.runCheck(ctx, c)
			rmu.Lock()
			results[c.Name()] = r
			rmu.Unlock()
		}(c)
	}
	wg.Wait()

	summary := summarize(results)
	overall := overallFrom(summary)
	overall.Duration = time.Since(start)
	overall.Timestamp = time.Now()

	m.mu.Lock()
	for k, v := range results {
		m.lastResults[k] = v
	}
	m.mu.Unlock()

	return DetailedHealth{Overall: overall, Components: results, Summary: summary, Timestamp: overall.Timestamp}
}

// GetOverallHealth returns the overall health status
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	return m.GetDetailedHealth(ctx).Overall
}

// IsReady reports whether every critical check passes.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive is true while the process can serve HTTP.
func (m *Manager) IsLive(context.Context) bool { return true }

// GetLastResults returns the results of the most recent run.
func (m *Manager) GetLastResults() map[string]CheckResult {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]CheckResult, len(m.lastResults))
	for k, v := range m.lastResults {
		out[k] = v
	}
	return out
}

func (m *Manager) runCheck(ctx context.Context, c Checker) (result CheckResult) {
	timeout := c.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			result = CheckResult{
				Status:    StatusUnhealthy,
				Component: c.Name(),
				Critical:  c.IsCritical(),
				Error:     fmt.Sprintf("panic: %v", r),
				Timestamp: time.Now(),
			}
		}
	}()
	result = c.Check(cctx)
	if result.Component == "" {
		result.Component = c.Name()
	}
	result.Critical = c.IsCritical()
	return result
}

func summarize(results map[string]CheckResult) Summary {
	var s Summary
	for _, r := range results {
		s.Total++
		switch r.Status {
		case StatusHealthy:
			s.Healthy++
		case StatusDegraded:
			s.Degraded++
		default:
			s.Unhealthy++
			if r.Critical {
				s.Critical++
			}
		}
	}
	return s
}

func overallFrom(s Summary) OverallHealth {
	o := OverallHealth{Live: true}
	switch {
	case s.Critical > 0:
		o.Status = StatusUnhealthy
		o.Message = fmt.Sprintf("%d critical component(s) unhealthy", s.Critical)
	case s.Unhealthy > 0 || s.Degraded > 0:
		o.Status = StatusDegraded
		o.Degraded = true
		o.Ready = true
		o.Message = fmt.Sprintf("%d component(s) degraded or unhealthy", s.Unhealthy+s.Degraded)
	default:
		o.Status = StatusHealthy
		o.Ready = true
		o.Message = "All components healthy"
	}
	return o
}

// Start runs the checks every interval until Stop or ctx ends.
func (m *Manager) Start(ctx context.Context, interval time.Duration) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return fmt.Errorf("health manager already started")
	}
	if interval > 0 {
		m.interval = interval
	}
	m.started = true
	m.stopCh = make(chan struct{})
	stop := m.stopCh
	m.mu.Unlock()

	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				d := m.GetDetailedHealth(ctx)
				if d.Overall.Status != StatusHealthy {
					m.logger.Warn("Background health check not healthy",
						zap.String("status", d.Overall.Status.String()),
						zap.String("message", d.Overall.Message))
				}
			case <-stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Stop ends the background loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		close(m.stopCh)
		m.started = false
	}
}
