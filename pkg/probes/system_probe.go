package probes

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/gravito-framework/quasar-resque/pkg/types"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
)

// GoSystemProbe implements SystemProbe using gopsutil
type GoSystemProbe struct {
	startTime time.Time
	proc      *process.Process

	// CPU sampling
	mu               sync.RWMutex
	lastCPUTimes     cpu.TimesStat
	cachedCPUPercent float64
	stopSampler      chan struct{}
	stopOnce         sync.Once
}

// NewGoSystemProbe creates a probe for the current process and starts a
// background CPU sampler. Call Stop to release it.
func NewGoSystemProbe(sampleEvery time.Duration) (*GoSystemProbe, error) {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil, err
	}

	probe := &GoSystemProbe{
		startTime:   time.Now(),
		proc:        p,
		stopSampler: make(chan struct{}),
	}

	// Baseline; the first real value lands after one sampling period
	if times, err := cpu.Times(false); err == nil && len(times) > 0 {
		probe.lastCPUTimes = times[0]
	}

	if sampleEvery <= 0 {
		sampleEvery = time.Second
	}
	go probe.cpuSampler(sampleEvery)

	return probe, nil
}

func (p *GoSystemProbe) cpuSampler(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sampleCPU()
		case <-p.stopSampler:
			return
		}
	}
}

func (p *GoSystemProbe) sampleCPU() {
	times, err := cpu.Times(false)
	if err != nil || len(times) == 0 {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := times[0]
	deltaTotal := current.Total() - p.lastCPUTimes.Total()
	deltaIdle := current.Idle - p.lastCPUTimes.Idle
	if deltaTotal > 0 {
		p.cachedCPUPercent = round(100*(deltaTotal-deltaIdle)/deltaTotal, 2)
	}
	p.lastCPUTimes = current
}

// Stop stops the CPU sampler
func (p *GoSystemProbe) Stop() {
	p.stopOnce.Do(func() { close(p.stopSampler) })
}

// GetMetrics collects current system and process metrics
func (p *GoSystemProbe) GetMetrics() (*types.CollectorInfo, error) {
	hostname, _ := os.Hostname()

	return &types.CollectorInfo{
		Hostname: hostname,
		PID:      os.Getpid(),
		Platform: runtime.GOOS,
		Uptime:   time.Since(p.startTime).Seconds(),
		CPU:      p.cpuMetrics(),
		Memory:   p.memoryMetrics(),
	}, nil
}

func (p *GoSystemProbe) cpuMetrics() types.CPUMetrics {
	p.mu.RLock()
	systemPercent := p.cachedCPUPercent
	p.mu.RUnlock()

	cores := runtime.NumCPU()
	if c, err := cpu.Counts(true); err == nil && c > 0 {
		cores = c
	}

	procPercent := 0.0
	if pct, err := p.proc.CPUPercent(); err == nil {
		// gopsutil reports a percentage of ONE core; normalize to the whole machine
		procPercent = round(pct/float64(cores), 2)
	}

	return types.CPUMetrics{
		System:  systemPercent,
		Process: procPercent,
		Cores:   cores,
	}
}

func (p *GoSystemProbe) memoryMetrics() types.MemoryMetrics {
	var m types.MemoryMetrics

	if v, err := mem.VirtualMemory(); err == nil {
		m.SystemTotal = v.Total
		m.SystemUsed = v.Used
	}

	if info, err := p.proc.MemoryInfo(); err == nil {
		m.ProcessRSS = info.RSS
	} else {
		var rt runtime.MemStats
		runtime.ReadMemStats(&rt)
		m.ProcessRSS = rt.Sys
	}

	return m
}

// round rounds a float64 to n decimal places
func round(val float64, decimals int) float64 {
	shift := float64(1)
	for i := 0; i < decimals; i++ {
		shift *= 10
	}
	return float64(int(val*shift+0.5)) / shift
}

var _ SystemProbe = (*GoSystemProbe)(nil)
