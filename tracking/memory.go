package tracking

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/YuminosukeSato/shapgo/pkg/errors"
)

// Call is one recorded Sink invocation.
type Call struct {
	Method string // BeginRun, LogParam, LogMetric, LogArtifact, LogModel, EndRun
	RunID  string
	Key    string // param/metric key, artifact path or model path
	Value  string // param value, formatted metric, artifact group or model JSON
}

// Memory is an in-process Sink that keeps every call in order. It performs
// the same validation as Store.
type Memory struct {
	mu    sync.Mutex
	calls []Call
	runs  map[string]*memoryRun
}

type memoryRun struct {
	Run
	params  map[string]string
	metrics map[string]float64
}

// NewMemory creates an empty Memory sink.
func NewMemory() *Memory {
	return &Memory{runs: make(map[string]*memoryRun)}
}

func (m *Memory) BeginRun(ctx context.Context, experiment string) (RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return RunHandle{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	h := RunHandle{ID: uuid.NewString(), Experiment: experiment, StartedAt: time.Now().UTC()}
	m.runs[h.ID] = &memoryRun{
		Run:     Run{RunHandle: h, Status: StatusRunning},
		params:  make(map[string]string),
		metrics: make(map[string]float64),
	}
	m.calls = append(m.calls, Call{Method: "BeginRun", RunID: h.ID, Key: experiment})
	return h, nil
}

func (m *Memory) LogParam(h RunHandle, key, value string) error {
	if err := validateKey("param", key); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.open(h)
	if err != nil {
		return err
	}
	if prev, ok := run.params[key]; ok && prev != value {
		return errors.NewValidationError(key, "param already logged with "+prev, value)
	}
	run.params[key] = value
	m.calls = append(m.calls, Call{Method: "LogParam", RunID: h.ID, Key: key, Value: value})
	return nil
}

func (m *Memory) LogMetric(h RunHandle, key string, value float64) error {
	if err := validateKey("metric", key); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.NewValidationError(key, "metric must be finite", value)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.open(h)
	if err != nil {
		return err
	}
	if prev, ok := run.metrics[key]; ok && prev != value {
		return errors.NewValidationError(key, "metric already logged", value)
	}
	run.metrics[key] = value
	m.calls = append(m.calls, Call{Method: "LogMetric", RunID: h.ID, Key: key, Value: fmt.Sprint(value)})
	return nil
}

func (m *Memory) LogArtifact(h RunHandle, localPath, group string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.open(h); err != nil {
		return err
	}
	m.calls = append(m.calls, Call{Method: "LogArtifact", RunID: h.ID, Key: localPath, Value: group})
	return nil
}

func (m *Memory) LogModel(h RunHandle, model json.Marshaler, logicalPath string) error {
	data, err := model.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.open(h); err != nil {
		return err
	}
	m.calls = append(m.calls, Call{Method: "LogModel", RunID: h.ID, Key: logicalPath, Value: string(data)})
	return nil
}

func (m *Memory) EndRun(h RunHandle, status Status) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	run, err := m.open(h)
	if err != nil {
		return err
	}
	run.Status = status
	run.EndedAt = time.Now().UTC()
	m.calls = append(m.calls, Call{Method: "EndRun", RunID: h.ID, Value: string(status)})
	return nil
}

// Calls returns a copy of every recorded call.
func (m *Memory) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Call(nil), m.calls...)
}

// Methods returns the method names of every recorded call, in order.
func (m *Memory) Methods() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	for i, c := range m.calls {
		out[i] = c.Method
	}
	return out
}

// Run returns the state of run id.
func (m *Memory) Run(id string) (Run, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return Run{}, false
	}
	return run.Run, true
}

// Params returns a copy of the params of run id.
func (m *Memory) Params(id string) map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string)
	if run, ok := m.runs[id]; ok {
		for k, v := range run.params {
			out[k] = v
		}
	}
	return out
}

// Metrics returns a copy of the metrics of run id.
func (m *Memory) Metrics(id string) map[string]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]float64)
	if run, ok := m.runs[id]; ok {
		for k, v := range run.metrics {
			out[k] = v
		}
	}
	return out
}

func (m *Memory) open(h RunHandle) (*memoryRun, error) {
	run, ok := m.runs[h.ID]
	if !ok {
		return nil, unknownRun(h.ID)
	}
	return run, checkOpen(run.Run)
}

var (
	_ Sink = (*Memory)(nil)
	_ Sink = (*Store)(nil)
)
