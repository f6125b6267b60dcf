package tracking

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"github.com/YuminosukeSato/shapgo"
	"github.com/YuminosukeSato/shapgo/pkg/errors"
	"github.com/YuminosukeSato/shapgo/pkg/log"
)

const (
	runsBucket    = "runs"    // run id -> Run (JSON)
	paramsBucket  = "params"  // run id -> nested bucket key -> value
	metricsBucket = "metrics" // run id -> nested bucket key -> float64 bits

	dbFile        = "tracking.db"
	artifactsDir  = "artifacts"
	modelDataFile = "model.json"
	modelMetaFile = "MLmodel"
	metricsFile   = "metrics.prom"
)

// Store is a file-backed Sink. Run metadata, params and metrics live in a
// bbolt database under root; artifacts and models are copied to
// root/<run_id>/artifacts/.
type Store struct {
	root   string
	db     *bbolt.DB
	now    func() time.Time
	logger log.Logger
}

// Open creates root if needed and opens the tracking database inside it.
func Open(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create tracking dir %s", root)
	}
	db, err := bbolt.Open(filepath.Join(root, dbFile), 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open tracking database")
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{runsBucket, paramsBucket, metricsBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "create %s bucket", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		root:   root,
		db:     db,
		now:    time.Now,
		logger: log.GetLoggerWithName("tracking"),
	}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Root returns the tracking directory.
func (s *Store) Root() string { return s.root }

// ArtifactDir returns the directory artifacts of run id are copied to.
func (s *Store) ArtifactDir(id string) string {
	return filepath.Join(s.root, id, artifactsDir)
}

// BeginRun registers a new RUNNING run.
func (s *Store) BeginRun(ctx context.Context, experiment string) (RunHandle, error) {
	if err := ctx.Err(); err != nil {
		return RunHandle{}, err
	}
	h := RunHandle{ID: uuid.NewString(), Experiment: experiment, StartedAt: s.now().UTC()}
	run := Run{RunHandle: h, Status: StatusRunning}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.Bucket([]byte(paramsBucket)).CreateBucket([]byte(h.ID)); err != nil {
			return err
		}
		if _, err := tx.Bucket([]byte(metricsBucket)).CreateBucket([]byte(h.ID)); err != nil {
			return err
		}
		return putRun(tx, run)
	})
	if err != nil {
		return RunHandle{}, errors.Wrap(err, "begin run")
	}
	if err := os.MkdirAll(s.ArtifactDir(h.ID), 0o755); err != nil {
		return RunHandle{}, errors.Wrap(err, "create artifact dir")
	}

	s.logger.Info("Run started", log.RunIDKey, h.ID, "experiment", experiment)
	return h, nil
}

// LogParam records a string parameter.
func (s *Store) LogParam(h RunHandle, key, value string) error {
	if err := validateKey("param", key); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := openRun(tx, h); err != nil {
			return err
		}
		b := tx.Bucket([]byte(paramsBucket)).Bucket([]byte(h.ID))
		if prev := b.Get([]byte(key)); prev != nil {
			if string(prev) != value {
				return errors.NewValidationError(key, "param already logged with "+string(prev), value)
			}
			return nil
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// LogMetric records a scalar metric.
func (s *Store) LogMetric(h RunHandle, key string, value float64) error {
	if err := validateKey("metric", key); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.NewValidationError(key, "metric must be finite", value)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if _, err := openRun(tx, h); err != nil {
			return err
		}
		b := tx.Bucket([]byte(metricsBucket)).Bucket([]byte(h.ID))
		if prev := b.Get([]byte(key)); prev != nil {
			if decodeFloat(prev) != value {
				return errors.NewValidationError(key, "metric already logged", value)
			}
			return nil
		}
		return b.Put([]byte(key), encodeFloat(value))
	})
}

// LogArtifact copies localPath to root/<run_id>/artifacts/<group>/.
func (s *Store) LogArtifact(h RunHandle, localPath, group string) error {
	if err := s.view(h); err != nil {
		return err
	}
	dir := filepath.Join(s.ArtifactDir(h.ID), group)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create artifact group %s", group)
	}
	dst := filepath.Join(dir, filepath.Base(localPath))
	if err := copyFile(localPath, dst); err != nil {
		return errors.Wrapf(err, "log artifact %s", localPath)
	}
	s.logger.Debug("Artifact logged", log.RunIDKey, h.ID, log.ArtifactKey, dst)
	return nil
}

// modelMeta is the MLmodel descriptor written next to model.json.
type modelMeta struct {
	ArtifactPath   string            `yaml:"artifact_path"`
	RunID          string            `yaml:"run_id"`
	UTCTimeCreated string            `yaml:"utc_time_created"`
	Flavors        map[string]flavor `yaml:"flavors"`
}

type flavor struct {
	Data    string `yaml:"data"`
	Format  string `yaml:"format"`
	Version string `yaml:"shapgo_version"`
}

// LogModel writes m as model.json plus an MLmodel descriptor under
// artifacts/<logicalPath>/.
func (s *Store) LogModel(h RunHandle, m json.Marshaler, logicalPath string) error {
	if err := s.view(h); err != nil {
		return err
	}
	data, err := m.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "marshal model")
	}
	dir := filepath.Join(s.ArtifactDir(h.ID), logicalPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "create model dir %s", logicalPath)
	}
	if err := os.WriteFile(filepath.Join(dir, modelDataFile), data, 0o644); err != nil {
		return errors.Wrap(err, "write model data")
	}

	meta, err := yaml.Marshal(modelMeta{
		ArtifactPath:   logicalPath,
		RunID:          h.ID,
		UTCTimeCreated: s.now().UTC().Format("2006-01-02 15:04:05.000000"),
		Flavors: map[string]flavor{
			"shapgo": {Data: modelDataFile, Format: "json", Version: shapgo.Version},
		},
	})
	if err != nil {
		return errors.Wrap(err, "marshal MLmodel")
	}
	if err := os.WriteFile(filepath.Join(dir, modelMetaFile), meta, 0o644); err != nil {
		return errors.Wrap(err, "write MLmodel")
	}
	s.logger.Debug("Model logged", log.RunIDKey, h.ID, log.ArtifactKey, dir)
	return nil
}

// EndRun closes the run with status and exports its metrics to
// root/<run_id>/metrics.prom.
func (s *Store) EndRun(h RunHandle, status Status) error {
	if err := validateStatus(status); err != nil {
		return err
	}
	var run Run
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		if run, err = openRun(tx, h); err != nil {
			return err
		}
		run.Status = status
		run.EndedAt = s.now().UTC()
		return putRun(tx, run)
	})
	if err != nil {
		return err
	}

	metrics, err := s.Metrics(h.ID)
	if err != nil {
		return err
	}
	if err := exportMetrics(filepath.Join(s.root, h.ID, metricsFile), run, metrics); err != nil {
		return err
	}
	s.logger.Info("Run ended", log.RunIDKey, h.ID, "status", string(status))
	return nil
}

// Run returns the stored run id.
func (s *Store) Run(id string) (Run, error) {
	var run Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		run, err = getRun(tx, id)
		return err
	})
	return run, err
}

// Runs returns every run, oldest first.
func (s *Store) Runs() ([]Run, error) {
	var runs []Run
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(runsBucket)).ForEach(func(_, v []byte) error {
			var run Run
			if err := json.Unmarshal(v, &run); err != nil {
				return err
			}
			runs = append(runs, run)
			return nil
		})
	})
	sort.SliceStable(runs, func(i, j int) bool { return runs[i].StartedAt.Before(runs[j].StartedAt) })
	return runs, err
}

// Params returns the params of run id.
func (s *Store) Params(id string) (map[string]string, error) {
	out := make(map[string]string)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(paramsBucket)).Bucket([]byte(id))
		if b == nil {
			return unknownRun(id)
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = string(v)
			return nil
		})
	})
	return out, err
}

// Metrics returns the metrics of run id.
func (s *Store) Metrics(id string) (map[string]float64, error) {
	out := make(map[string]float64)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(metricsBucket)).Bucket([]byte(id))
		if b == nil {
			return unknownRun(id)
		}
		return b.ForEach(func(k, v []byte) error {
			out[string(k)] = decodeFloat(v)
			return nil
		})
	})
	return out, err
}

func (s *Store) view(h RunHandle) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		_, err := openRun(tx, h)
		return err
	})
}

func openRun(tx *bbolt.Tx, h RunHandle) (Run, error) {
	run, err := getRun(tx, h.ID)
	if err != nil {
		return Run{}, err
	}
	return run, checkOpen(run)
}

func getRun(tx *bbolt.Tx, id string) (Run, error) {
	v := tx.Bucket([]byte(runsBucket)).Get([]byte(id))
	if v == nil {
		return Run{}, unknownRun(id)
	}
	var run Run
	if err := json.Unmarshal(v, &run); err != nil {
		return Run{}, errors.Wrapf(err, "decode run %s", id)
	}
	return run, nil
}

func putRun(tx *bbolt.Tx, run Run) error {
	data, err := json.Marshal(run)
	if err != nil {
		return errors.Wrap(err, "marshal run")
	}
	return tx.Bucket([]byte(runsBucket)).Put([]byte(run.ID), data)
}

func unknownRun(id string) error {
	return errors.NewValidationError("run", "unknown run handle", id)
}

func encodeFloat(v float64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

func decodeFloat(b []byte) float64 {
	return math.Float64frombits(binary.BigEndian.Uint64(b))
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// exportMetrics writes the run's metrics in the Prometheus text format so a
// node_exporter textfile collector can pick them up.
func exportMetrics(path string, run Run, metrics map[string]float64) error {
	reg := prometheus.NewRegistry()
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "shapgo",
		Name:      "run_metric",
		Help:      "Evaluation metric logged by a training run.",
	}, []string{"experiment", "run_id", "metric"})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace:   "shapgo",
		Name:        "run_duration_seconds",
		Help:        "Wall time between BeginRun and EndRun.",
		ConstLabels: prometheus.Labels{"experiment": run.Experiment, "run_id": run.ID, "status": string(run.Status)},
	})
	reg.MustRegister(gauge, duration)

	for name, v := range metrics {
		gauge.WithLabelValues(run.Experiment, run.ID, name).Set(v)
	}
	duration.Set(run.EndedAt.Sub(run.StartedAt).Seconds())

	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return errors.Wrap(err, "export run metrics")
	}
	return nil
}
