package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"trafficlens/internal/analysis"
	"trafficlens/internal/result"
	"trafficlens/internal/sampler"
	"trafficlens/internal/services"
)

// State is the lifecycle position of a run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
)

var titleCaser = cases.Title(language.English)

// Title returns the display form of the state.
func (s State) Title() string {
	return titleCaser.String(string(s))
}

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed
}

// ParseState validates a persisted state value.
func ParseState(raw string) (State, error) {
	switch st := State(raw); st {
	case StateIdle, StateRunning, StateSucceeded, StateFailed:
		return st, nil
	default:
		return "", fmt.Errorf("unknown run state %q", raw)
	}
}

// ErrInvalidTransition reports a state machine violation.
var ErrInvalidTransition = errors.New("invalid run transition")

// Snapshot is an immutable view of a run.
type Snapshot struct {
	ID              string                 `json:"id"`
	SourceLabel     string                 `json:"sourceLabel"`
	State           State                  `json:"state"`
	CompletedStages []Stage                `json:"completedStages"`
	Progress        float64                `json:"progress"`
	FrameCount      int                    `json:"frameCount"`
	ErrorKind       string                 `json:"errorKind,omitempty"`
	ErrorMessage    string                 `json:"errorMessage,omitempty"`
	Result          *result.AnalysisResult `json:"result,omitempty"`
	CreatedAt       time.Time              `json:"createdAt"`
	UpdatedAt       time.Time              `json:"updatedAt"`
}

// StageIDs returns the completed stages as identifiers.
func (s Snapshot) StageIDs() []string {
	ids := make([]string, len(s.CompletedStages))
	for i, st := range s.CompletedStages {
		ids[i] = st.String()
	}
	return ids
}

// Run is one end-to-end attempt to process a single submission. It is safe
// for concurrent readers while the orchestrator advances it.
type Run struct {
	mu          sync.RWMutex
	id          string
	sourceLabel string
	state       State
	completed   []Stage
	frameCount  int
	err         error
	res         *result.AnalysisResult
	createdAt   time.Time
	updatedAt   time.Time
	now         func() time.Time
}

// NewRun creates an idle run with a fresh identifier.
func NewRun(sourceLabel string) *Run {
	now := time.Now().UTC()
	return &Run{
		id:          uuid.NewString(),
		sourceLabel: sourceLabel,
		state:       StateIdle,
		createdAt:   now,
		updatedAt:   now,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *Run) ID() string          { return r.id }
func (r *Run) SourceLabel() string { return r.sourceLabel }

func (r *Run) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// CompletedStages returns a copy of the completed stages in completion order.
func (r *Run) CompletedStages() []Stage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Stage(nil), r.completed...)
}

// Progress is 100 * completed / total.
func (r *Run) Progress() float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return progressFor(len(r.completed))
}

func (r *Run) Err() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.err
}

// Result returns the validated result once the run succeeded.
func (r *Run) Result() (result.AnalysisResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.res == nil {
		return result.AnalysisResult{}, false
	}
	return *r.res, true
}

func (r *Run) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := Snapshot{
		ID:              r.id,
		SourceLabel:     r.sourceLabel,
		State:           r.state,
		CompletedStages: append([]Stage(nil), r.completed...),
		Progress:        progressFor(len(r.completed)),
		FrameCount:      r.frameCount,
		CreatedAt:       r.createdAt,
		UpdatedAt:       r.updatedAt,
	}
	if r.err != nil {
		snap.ErrorKind = ErrorKind(r.err)
		snap.ErrorMessage = r.err.Error()
	}
	if r.res != nil {
		res := *r.res
		snap.Result = &res
	}
	return snap
}

func (r *Run) start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateIdle {
		return fmt.Errorf("%w: start from %s", ErrInvalidTransition, r.state)
	}
	r.state = StateRunning
	r.updatedAt = r.now()
	return nil
}

func (r *Run) setFrameCount(n int) {
	r.mu.Lock()
	r.frameCount = n
	r.mu.Unlock()
}

// complete marks st done. Only the next stage in declared order is accepted.
func (r *Run) complete(st Stage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return fmt.Errorf("%w: complete %s while %s", ErrInvalidTransition, st, r.state)
	}
	if next := Stage(len(r.completed)); st != next {
		return fmt.Errorf("%w: complete %s before %s", ErrInvalidTransition, st, next)
	}
	r.completed = append(r.completed, st)
	r.updatedAt = r.now()
	return nil
}

func (r *Run) succeed(res result.AnalysisResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != StateRunning {
		return fmt.Errorf("%w: succeed while %s", ErrInvalidTransition, r.state)
	}
	if len(r.completed) != StageCount {
		return fmt.Errorf("%w: succeed with %d of %d stages", ErrInvalidTransition, len(r.completed), StageCount)
	}
	r.state = StateSucceeded
	r.res = &res
	r.updatedAt = r.now()
	return nil
}

func (r *Run) fail(err error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Terminal() {
		return fmt.Errorf("%w: fail while %s", ErrInvalidTransition, r.state)
	}
	r.state = StateFailed
	r.err = err
	r.updatedAt = r.now()
	return nil
}

func progressFor(completed int) float64 {
	return 100 * float64(completed) / float64(StageCount)
}

// ErrorKind classifies a run failure for persistence and metrics.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	if kind, ok := analysis.KindOf(err); ok {
		return string(kind)
	}
	if errors.Is(err, analysis.ErrNoFrames) {
		return "no_frames"
	}
	if cat := services.FailureCategory(err); cat == "canceled" || cat == "timeout" {
		return cat
	}
	var se *sampler.SamplingError
	if errors.As(err, &se) {
		return "sampling"
	}
	return services.FailureCategory(err)
}
