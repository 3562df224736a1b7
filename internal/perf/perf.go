package perf

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/lodestone-ai/lodestone/internal/log"
)

// DefaultSampleInterval is how often the background sampler polls process
// memory and CPU.
const DefaultSampleInterval = 100 * time.Millisecond

// eventKind discriminates metric events on the aggregator channel.
type eventKind int

const (
	kindPhase eventKind = iota
	kindCounter
	kindGauge
)

type event struct {
	kind     eventKind
	name     string
	duration time.Duration
	delta    int64
	value    float64
}

// PhaseStats aggregates timings for one named phase.
type PhaseStats struct {
	Count int64
	Total time.Duration
	Max   time.Duration
}

// Mean returns the mean phase duration.
func (p PhaseStats) Mean() time.Duration {
	if p.Count == 0 {
		return 0
	}
	return p.Total / time.Duration(p.Count)
}

// Snapshot is a point-in-time copy of all aggregated metrics.
type Snapshot struct {
	Phases   map[string]PhaseStats
	Counters map[string]int64
	Gauges   map[string]float64

	PeakRSSBytes uint64
	MeanCPUPct   float64
	Samples      int64
}

// Flatten renders the snapshot as name->value pairs for run summaries.
// Phase timings are reported in milliseconds.
func (s Snapshot) Flatten() map[string]float64 {
	out := make(map[string]float64)
	for name, p := range s.Phases {
		out["phase."+name+".count"] = float64(p.Count)
		out["phase."+name+".total_ms"] = float64(p.Total.Milliseconds())
		out["phase."+name+".mean_ms"] = float64(p.Mean().Milliseconds())
	}
	for name, v := range s.Counters {
		out["counter."+name] = float64(v)
	}
	for name, v := range s.Gauges {
		out["gauge."+name] = v
	}
	out["process.peak_rss_bytes"] = float64(s.PeakRSSBytes)
	out["process.mean_cpu_pct"] = s.MeanCPUPct
	out["process.samples"] = float64(s.Samples)
	return out
}

// SortedPhaseNames returns phase names in deterministic order.
func (s Snapshot) SortedPhaseNames() []string {
	names := make([]string, 0, len(s.Phases))
	for name := range s.Phases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tracker aggregates metric events from concurrent producers through a
// single channel-fed goroutine, so no counter is ever shared mutably. A
// background sampler polls process memory and CPU on its own ticker.
type Tracker struct {
	events   chan event
	snapReq  chan chan Snapshot
	done     chan struct{}
	interval time.Duration
	logger   log.Logger
}

// New creates a Tracker. Call Start before recording.
func New(interval time.Duration, logger log.Logger) *Tracker {
	if interval <= 0 {
		interval = DefaultSampleInterval
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Tracker{
		events:   make(chan event, 256),
		snapReq:  make(chan chan Snapshot),
		done:     make(chan struct{}),
		interval: interval,
		logger:   logger,
	}
}

// Start launches the aggregator and sampler. They stop when ctx is
// cancelled or Stop is called.
func (t *Tracker) Start(ctx context.Context) {
	go t.aggregate(ctx)
	go t.sample(ctx)
}

// Stop shuts the tracker down. Events recorded after Stop are dropped.
func (t *Tracker) Stop() {
	select {
	case <-t.done:
	default:
		close(t.done)
	}
}

// RecordPhase records one timed execution of a named phase.
func (t *Tracker) RecordPhase(name string, d time.Duration) {
	t.send(event{kind: kindPhase, name: name, duration: d})
}

// StartTimer times a phase; the returned func records the elapsed time.
func (t *Tracker) StartTimer(name string) func() {
	start := time.Now()
	return func() {
		t.RecordPhase(name, time.Since(start))
	}
}

// AddCounter adjusts a named counter.
func (t *Tracker) AddCounter(name string, delta int64) {
	t.send(event{kind: kindCounter, name: name, delta: delta})
}

// SetGauge records the latest value of a named gauge, such as token budget
// utilization.
func (t *Tracker) SetGauge(name string, value float64) {
	t.send(event{kind: kindGauge, name: name, value: value})
}

func (t *Tracker) send(e event) {
	select {
	case t.events <- e:
	case <-t.done:
	}
}

// Snapshot returns a copy of the current aggregate state.
func (t *Tracker) Snapshot() Snapshot {
	reply := make(chan Snapshot, 1)
	select {
	case t.snapReq <- reply:
		return <-reply
	case <-t.done:
		return Snapshot{Phases: map[string]PhaseStats{}, Counters: map[string]int64{}, Gauges: map[string]float64{}}
	}
}

func (t *Tracker) aggregate(ctx context.Context) {
	phases := make(map[string]PhaseStats)
	counters := make(map[string]int64)
	gauges := make(map[string]float64)
	var peakRSS uint64
	var cpuSum float64
	var samples int64

	apply := func(e event) {
		switch e.kind {
		case kindPhase:
			p := phases[e.name]
			p.Count++
			p.Total += e.duration
			if e.duration > p.Max {
				p.Max = e.duration
			}
			phases[e.name] = p
		case kindCounter:
			counters[e.name] += e.delta
		case kindGauge:
			switch e.name {
			case gaugeRSS:
				if rss := uint64(e.value); rss > peakRSS {
					peakRSS = rss
				}
			case gaugeCPU:
				cpuSum += e.value
				samples++
			default:
				gauges[e.name] = e.value
			}
		}
	}

	for {
		select {
		case e := <-t.events:
			apply(e)
		case reply := <-t.snapReq:
			// Apply events already queued so a snapshot taken after the
			// producers finish reflects everything they sent.
			for {
				var drained bool
				select {
				case e := <-t.events:
					apply(e)
				default:
					drained = true
				}
				if drained {
					break
				}
			}
			snap := Snapshot{
				Phases:       make(map[string]PhaseStats, len(phases)),
				Counters:     make(map[string]int64, len(counters)),
				Gauges:       make(map[string]float64, len(gauges)),
				PeakRSSBytes: peakRSS,
				Samples:      samples,
			}
			for k, v := range phases {
				snap.Phases[k] = v
			}
			for k, v := range counters {
				snap.Counters[k] = v
			}
			for k, v := range gauges {
				snap.Gauges[k] = v
			}
			if samples > 0 {
				snap.MeanCPUPct = cpuSum / float64(samples)
			}
			reply <- snap
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
}

const (
	gaugeRSS = "process.rss"
	gaugeCPU = "process.cpu"
)

// sample polls process memory and CPU on its own ticker so sampling never
// blocks, and is never blocked by, the work queue.
func (t *Tracker) sample(ctx context.Context) {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		t.logger.Warn("process sampler unavailable", "error", err)
		return
	}

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if mem, err := proc.MemoryInfo(); err == nil {
				t.SetGauge(gaugeRSS, float64(mem.RSS))
			}
			if cpu, err := proc.CPUPercent(); err == nil {
				t.SetGauge(gaugeCPU, cpu)
			}
		case <-ctx.Done():
			return
		case <-t.done:
			return
		}
	}
}

// FormatBytes renders a byte count for log output.
func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
