package core

import (
	"context"
	"fmt"
	"time"

	"deident/internal/check"
	"deident/internal/dataset"
	"deident/internal/hierarchy"
	"deident/internal/lattice"
	"deident/internal/search"
)

const defaultHistoryLimit = 200

// Job describes one anonymization request: the records, the
// quasi-identifiers with their generalization hierarchies, and the privacy
// and quality parameters.
type Job struct {
	Name             string
	Dataset          *dataset.Dataset
	DatasetRef       string
	QuasiIdentifiers []string
	Hierarchies      map[string]*hierarchy.Hierarchy
	Privacy          PrivacyConfig
	Metric           string
}

// Service runs anonymization jobs and optionally persists their outcomes.
type Service struct {
	store   RunStore
	logger  Logger
	metrics MetricsRecorder
	clock   func() time.Time
	history int
}

// NewService constructs a service. A nil store disables run persistence.
func NewService(store RunStore, opts ...Option) *Service {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Service{
		store:   store,
		logger:  o.logger,
		metrics: o.metrics,
		clock:   o.clock,
		history: o.historyLimit,
	}
}

// Anonymize searches the job's generalization lattice for the least-loss
// anonymous transformation and returns the run summary. When a store is
// configured the run is persisted before returning.
func (s *Service) Anonymize(ctx context.Context, job Job) (RunResult, error) {
	started := s.clock()
	result, err := s.anonymize(ctx, job)
	if s.metrics != nil {
		s.metrics.Observe(ctx, "anonymize", err == nil, s.clock().Sub(started))
	}
	if err != nil {
		s.logger.Error("anonymize failed", "job", job.Name, "error", err)
		return RunResult{}, err
	}
	s.logger.Info("anonymize finished",
		"job", job.Name,
		"optimum", result.Optimum.String(),
		"loss", result.OptimumLoss,
		"checked", result.CheckedNodes,
		"lattice", result.LatticeSize,
	)
	return result, nil
}

func (s *Service) anonymize(ctx context.Context, job Job) (RunResult, error) {
	started := s.clock()

	chk, lat, err := s.wire(job)
	if err != nil {
		return RunResult{}, err
	}
	plan := buildPhases(lat, chk)
	s.logger.Debug("search wired",
		"job", job.Name,
		"mode", plan.mode,
		"lattice", lat.Size(),
		"metric", job.Metric,
	)

	engine := search.New(lat, chk, search.NewLevelStrategy(chk.Heights()), plan.binary, plan.linear)
	if err := engine.Run(ctx); err != nil {
		return RunResult{}, fmt.Errorf("search: %w", err)
	}

	result := s.collect(lat, chk)
	result.Duration = s.clock().Sub(started)
	if result.Optimum != nil {
		classes := chk.Partition(result.Optimum)
		for _, c := range classes {
			if c.Count < job.Privacy.K {
				result.SuppressedRecords += c.Count
			}
		}
	}

	if s.store != nil {
		rec := RunRecord{
			ID:               fmt.Sprintf("run-%d", started.UnixNano()),
			Name:             job.Name,
			Dataset:          job.DatasetRef,
			K:                job.Privacy.K,
			SuppressionLimit: job.Privacy.SuppressionLimit,
			Metric:           job.Metric,
			Optimum:          result.Optimum,
			OptimumLoss:      result.OptimumLoss,
			CheckedNodes:     result.CheckedNodes,
			LatticeSize:      result.LatticeSize,
			CreatedAt:        started.UTC(),
		}
		if _, err := s.store.SaveRun(ctx, rec); err != nil {
			return RunResult{}, fmt.Errorf("persist run: %w", err)
		}
	}
	return result, nil
}

// wire builds the checker, history cache, and lattice for one job.
func (s *Service) wire(job Job) (*check.Checker, *lattice.Lattice, error) {
	if job.Dataset == nil {
		return nil, nil, fmt.Errorf("job %q: no dataset", job.Name)
	}
	if len(job.QuasiIdentifiers) == 0 {
		return nil, nil, fmt.Errorf("job %q: no quasi-identifiers", job.Name)
	}
	heights := make([]int, len(job.QuasiIdentifiers))
	for i, qi := range job.QuasiIdentifiers {
		h, ok := job.Hierarchies[qi]
		if !ok {
			return nil, nil, fmt.Errorf("job %q: no hierarchy for %q", job.Name, qi)
		}
		heights[i] = h.Height()
	}
	lat, err := lattice.Build(heights)
	if err != nil {
		return nil, nil, err
	}
	metric, err := check.NewMetric(job.Metric, heights)
	if err != nil {
		return nil, nil, err
	}
	chk, err := check.New(job.Dataset, job.QuasiIdentifiers, job.Hierarchies, job.Privacy, metric, check.NewHistory(lat, s.history))
	if err != nil {
		return nil, nil, err
	}
	return chk, lat, nil
}

// collect scans the finished lattice for the least-loss anonymous node and
// aggregates the run counters.
func (s *Service) collect(lat *lattice.Lattice, chk *check.Checker) RunResult {
	result := RunResult{
		LatticeSize:  lat.Size(),
		CheckedNodes: chk.Checked(),
	}
	classification := anonymousProperties | lattice.PropertyNotAnonymous | lattice.PropertyNotKAnonymous
	found := false
	for id := 0; id < lat.Size(); id++ {
		node := lat.Node(lattice.NodeID(id))
		if node.HasProperty(classification) && !node.HasProperty(lattice.PropertyChecked) {
			result.TaggedNodes++
		}
		if !node.HasProperty(anonymousProperties) {
			continue
		}
		loss, ok := node.InformationLoss()
		if !ok {
			continue
		}
		if !found || loss < result.OptimumLoss {
			result.Optimum = node.Transformation().Clone()
			result.OptimumLoss = loss
			found = true
		}
	}
	return result
}
