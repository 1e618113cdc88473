package jobs

import (
	"context"
	"log/slog"

	"lifesim/internal/advisory"
	"lifesim/internal/depreciation"

	"github.com/google/uuid"
)

type Depreciator interface {
	Backfill(ctx context.Context) (int, error)
	ApplyMonthly(ctx context.Context, playerID *uuid.UUID) (depreciation.RunResult, error)
}

type Advisor interface {
	RunDaily(ctx context.Context) (advisory.DailyResult, error)
}

var (
	_ Depreciator = (*depreciation.Engine)(nil)
	_ Advisor     = (*advisory.Engine)(nil)
)

// Recorder receives engine results for metrics.
type Recorder interface {
	RecordDepreciation(res depreciation.RunResult, err error)
	RecordAdvisory(res advisory.DailyResult)
}

type nopRecorder struct{}

func (nopRecorder) RecordDepreciation(depreciation.RunResult, error) {}
func (nopRecorder) RecordAdvisory(advisory.DailyResult)              {}

func orNop(r Recorder) Recorder {
	if r == nil {
		return nopRecorder{}
	}
	return r
}

// DepreciationJob backfills holdings that were never valued, then applies the
// month's depreciation to every active holding.
type DepreciationJob struct {
	engine   Depreciator
	recorder Recorder
	log      *slog.Logger
}

func NewDepreciationJob(engine Depreciator, recorder Recorder, logger *slog.Logger) *DepreciationJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &DepreciationJob{engine: engine, recorder: orNop(recorder), log: logger}
}

func (j *DepreciationJob) Name() string { return "depreciation" }

func (j *DepreciationJob) Run(ctx context.Context) error {
	n, err := j.engine.Backfill(ctx)
	if err != nil {
		j.log.Warn("backfill before depreciation failed", "err", err)
	} else if n > 0 {
		j.log.Info("backfilled holdings", "count", n)
	}
	res, err := j.engine.ApplyMonthly(ctx, nil)
	j.recorder.RecordDepreciation(res, err)
	return err
}

type BackfillJob struct {
	engine Depreciator
	log    *slog.Logger
}

func NewBackfillJob(engine Depreciator, logger *slog.Logger) *BackfillJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &BackfillJob{engine: engine, log: logger}
}

func (j *BackfillJob) Name() string { return "backfill" }

func (j *BackfillJob) Run(ctx context.Context) error {
	n, err := j.engine.Backfill(ctx)
	if err != nil {
		return err
	}
	j.log.Info("backfill complete", "count", n)
	return nil
}

type AdvisoryJob struct {
	engine   Advisor
	recorder Recorder
}

func NewAdvisoryJob(engine Advisor, recorder Recorder) *AdvisoryJob {
	return &AdvisoryJob{engine: engine, recorder: orNop(recorder)}
}

func (j *AdvisoryJob) Name() string { return "advisory" }

func (j *AdvisoryJob) Run(ctx context.Context) error {
	res, err := j.engine.RunDaily(ctx)
	if err != nil {
		return err
	}
	j.recorder.RecordAdvisory(res)
	return nil
}
