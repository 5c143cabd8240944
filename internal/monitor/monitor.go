package monitor

import (
	"strings"
	"sync"
	"time"

	"github.com/banshee-data/cellgate/internal/db"
	"github.com/banshee-data/cellgate/internal/monitoring"
	"github.com/banshee-data/cellgate/internal/protocol"
)

// Phase is the monitor's lifecycle stage.
type Phase string

const (
	PhaseTraining Phase = "training"
	PhaseLive     Phase = "live"
)

// recentLimit bounds the decisions kept for charts and plots.
const recentLimit = 36000

// Config tunes the monitor.
type Config struct {
	NoiseWindow       int
	TrainingSamples   int
	DebounceWindow    int
	DebounceThreshold int
	ZThreshold        float64
	// Verbose logs every live decision, not only alerts.
	Verbose bool
}

// DefaultConfig returns the standard monitor settings.
func DefaultConfig() Config {
	return Config{
		NoiseWindow:       20,
		TrainingSamples:   200,
		DebounceWindow:    10,
		DebounceThreshold: 3,
		ZThreshold:        DefaultZThreshold,
	}
}

// Decision is the monitor's verdict on one frame.
type Decision struct {
	Seq      int       `json:"seq"`
	Time     time.Time `json:"time"`
	Status   uint8     `json:"status"`
	Features Features  `json:"features"`
	Phase    Phase     `json:"phase"`
	Anomaly  bool      `json:"anomaly"`
	Alert    bool      `json:"alert"`
	Reasons  []string  `json:"reasons,omitempty"`
	Action   string    `json:"action,omitempty"`
}

// Reason joins the decision's reasons for display.
func (d Decision) Reason() string { return strings.Join(d.Reasons, " + ") }

// SampleStore persists decisions.
type SampleStore interface {
	InsertSample(s db.MonitorSample) error
}

// Monitor turns egress frames into decisions. It is safe for concurrent
// use: the listener feeds it while admin routes read from it.
type Monitor struct {
	mu sync.Mutex

	cfg       Config
	tracker   *FeatureTracker
	training  []Features
	baseline  *Baseline
	detector  *Detector
	debouncer *Debouncer
	seq       int
	alerts    int

	// recent is a ring of at most limit decisions; next is the slot the
	// following decision overwrites once the ring is full.
	recent []Decision
	next   int
	limit  int

	store SampleStore
	runID string
	logf  func(format string, v ...interface{})
}

func New(cfg Config) *Monitor {
	def := DefaultConfig()
	if cfg.NoiseWindow <= 0 {
		cfg.NoiseWindow = def.NoiseWindow
	}
	if cfg.TrainingSamples < 2 {
		cfg.TrainingSamples = def.TrainingSamples
	}
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = def.DebounceWindow
	}
	if cfg.DebounceThreshold <= 0 {
		cfg.DebounceThreshold = def.DebounceThreshold
	}
	return &Monitor{
		cfg:       cfg,
		tracker:   NewFeatureTracker(cfg.NoiseWindow),
		debouncer: NewDebouncer(cfg.DebounceWindow, cfg.DebounceThreshold),
		limit:     recentLimit,
		logf:      monitoring.Tagged("monitor"),
	}
}

// SetStore records every decision to store under runID.
func (m *Monitor) SetStore(store SampleStore, runID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store = store
	m.runID = runID
}

// Process evaluates one frame. It reports false for the first frame, which
// only primes the feature tracker.
func (m *Monitor) Process(f protocol.EgressFrame, at time.Time) (Decision, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	feat, ok := m.tracker.Observe(f.Voltage(), f.Temp())
	if !ok {
		return Decision{}, false
	}
	m.seq++
	d := Decision{Seq: m.seq, Time: at, Status: f.Status(), Features: feat}

	if m.baseline == nil {
		d.Phase = PhaseTraining
		m.training = append(m.training, feat)
		if n := len(m.training); n%20 == 0 {
			m.logf("captured %d/%d training samples", n, m.cfg.TrainingSamples)
		}
		if len(m.training) >= m.cfg.TrainingSamples {
			m.finishTraining()
		}
	} else {
		d.Phase = PhaseLive
		d.Anomaly = m.detector.IsAnomaly(feat)
		d.Alert = m.debouncer.Push(d.Anomaly)
		if d.Alert {
			m.alerts++
			d.Reasons = Explain(feat, *m.baseline)
			d.Action = Recommend(d.Reasons)
			m.logf("[ALERT!] %s -> %s", d.Reason(), d.Action)
			m.logf("   Voltage = %.0f mV  Noise=%5.2f  Temp = %.0f C", feat.VoltageMV, feat.NoiseStd, feat.TempC)
		} else if m.cfg.Verbose {
			m.logf("OK - V=%4.0f mV  dV=%+4.0f  Noise=%5.2f", feat.VoltageMV, feat.DeltaMV, feat.NoiseStd)
		}
	}

	m.remember(d)
	m.persist(d, f)
	return d, true
}

// Handle is Process as a FrameHandler.
func (m *Monitor) Handle(f protocol.EgressFrame, at time.Time) { m.Process(f, at) }

func (m *Monitor) finishTraining() {
	b, err := Train(m.training)
	if err != nil {
		m.logf("training failed: %v", err)
		return
	}
	m.baseline = &b
	m.detector = NewDetector(b, m.cfg.ZThreshold)
	m.training = nil
	m.logf("baseline learned from %d samples: %s", b.Samples, b)
}

func (m *Monitor) remember(d Decision) {
	if len(m.recent) < m.limit {
		m.recent = append(m.recent, d)
		return
	}
	m.recent[m.next] = d
	m.next = (m.next + 1) % m.limit
}

func (m *Monitor) persist(d Decision, f protocol.EgressFrame) {
	if m.store == nil {
		return
	}
	err := m.store.InsertSample(db.MonitorSample{
		RunID:     m.runID,
		Seq:       d.Seq,
		Time:      d.Time,
		VoltageMV: f.Voltage(),
		TempC:     f.Temp(),
		Status:    f.Status(),
		DeltaMV:   d.Features.DeltaMV,
		NoiseStd:  d.Features.NoiseStd,
		Phase:     string(d.Phase),
		Anomaly:   d.Anomaly,
		Alert:     d.Alert,
		Reasons:   d.Reason(),
	})
	if err != nil {
		m.logf("failed to store sample %d: %v", d.Seq, err)
	}
}

// Baseline returns the learned baseline once training has finished.
func (m *Monitor) Baseline() (Baseline, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseline == nil {
		return Baseline{}, false
	}
	return *m.baseline, true
}

// Phase returns the current phase.
func (m *Monitor) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.baseline == nil {
		return PhaseTraining
	}
	return PhaseLive
}

// Alerts returns the number of alerting decisions so far.
func (m *Monitor) Alerts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.alerts
}

// Recent returns up to n of the latest decisions, oldest first. n <= 0
// returns all retained decisions.
func (m *Monitor) Recent(n int) []Decision {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := len(m.recent)
	if n <= 0 || n > total {
		n = total
	}
	out := make([]Decision, n)
	// Oldest retained decision sits at next once the ring has wrapped.
	start := (m.next + total - n) % max(total, 1)
	for i := range out {
		out[i] = m.recent[(start+i)%total]
	}
	return out
}
