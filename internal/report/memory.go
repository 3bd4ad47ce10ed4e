package report

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

const bytesPerMB = 1024 * 1024

// Usage is the resident memory seen over a monitored span, in MB.
type Usage struct {
	StartMB float64 `json:"start_mb"`
	EndMB   float64 `json:"end_mb"`
	PeakMB  float64 `json:"peak_mb"`
}

// Monitor samples the resident set size of the current process.
type Monitor struct {
	proc *process.Process

	mu      sync.Mutex
	usage   Usage
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// NewMonitor attaches to the current process.
func NewMonitor() (*Monitor, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, fmt.Errorf("attaching to process: %w", err)
	}
	return &Monitor{proc: p}, nil
}

// CurrentMB returns the current RSS in MB.
func (m *Monitor) CurrentMB() (float64, error) {
	info, err := m.proc.MemoryInfo()
	if err != nil {
		return 0, fmt.Errorf("reading memory info: %w", err)
	}
	return float64(info.RSS) / bytesPerMB, nil
}

// Start records the baseline and samples every interval until Stop.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	cur, _ := m.CurrentMB()
	m.usage = Usage{StartMB: cur, PeakMB: cur}
	m.running = true

	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	go m.loop(ctx, interval, m.done)
}

func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sample()
		}
	}
}

func (m *Monitor) sample() float64 {
	cur, err := m.CurrentMB()
	if err != nil {
		return 0
	}
	m.mu.Lock()
	if cur > m.usage.PeakMB {
		m.usage.PeakMB = cur
	}
	m.mu.Unlock()
	return cur
}

// Stop ends sampling and returns the observed usage. Calling Stop without
// Start returns a single sample.
func (m *Monitor) Stop() Usage {
	m.mu.Lock()
	cancel, done, running := m.cancel, m.done, m.running
	m.running = false
	m.mu.Unlock()

	if running {
		cancel()
		<-done
	}
	end := m.sample()

	m.mu.Lock()
	defer m.mu.Unlock()
	if !running {
		m.usage = Usage{StartMB: end, PeakMB: end}
	}
	m.usage.EndMB = end
	if end > m.usage.PeakMB {
		m.usage.PeakMB = end
	}
	return m.usage
}
