package moderation

import (
	"context"
	"time"

	"streamcoin-core/pkg/config"
	"streamcoin-core/services/jobengine"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Result is the analyzer's judgment for one job.
type Result struct {
	Verdict  string
	Severity int
}

// Analyzer is the opaque unit of work: typically a call out to a moderation
// model. It knows nothing about retries or backoff.
type Analyzer interface {
	Analyze(ctx context.Context, job *Job) (Result, error)
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine *jobengine.Engine[Job, *Job]

	interval time.Duration
}

type ServiceParams struct {
	fx.In
	DB       *gorm.DB
	Node     *snowflake.Node
	Config   *config.Config
	Analyzer Analyzer
}

func NewService(p ServiceParams) *Service {
	qc := p.Config.Worker.Moderation

	s := &Service{
		db:       p.DB,
		node:     p.Node,
		interval: qc.Interval,
	}

	// Model calls are slow and flaky; the retry budget is deliberately
	// generous compared to the other queues.
	s.engine = jobengine.New[Job, *Job](p.DB, jobengine.Config{
		Name:        "moderation",
		BatchSize:   orDefaultInt(qc.BatchSize, 10),
		MaxRetries:  orDefaultInt(qc.MaxRetries, 5),
		StuckAfter:  orDefaultDur(qc.StuckAfter, 10*time.Minute),
		WorkTimeout: orDefaultDur(qc.WorkTimeout, 2*time.Minute),
		BackoffBase: orDefaultDur(qc.BackoffBase, 30*time.Second),
		BackoffCap:  orDefaultDur(qc.BackoffCap, 15*time.Minute),
		Concurrency: qc.Concurrency,
	}, s.analyze(p.Analyzer))

	return s
}

func (s *Service) analyze(analyzer Analyzer) jobengine.WorkFunc[Job] {
	return func(ctx context.Context, job *Job) error {
		result, err := analyzer.Analyze(ctx, job)
		if err != nil {
			return err
		}

		return s.db.WithContext(ctx).Model(&Job{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"verdict":    result.Verdict,
				"severity":   result.Severity,
				"updated_at": time.Now(),
			}).Error
	}
}

// Enqueue queues one subject for analysis.
func (s *Service) Enqueue(ctx context.Context, tenantID, subjectType, subjectID, content string) (*Job, error) {
	now := time.Now()
	job := &Job{
		ID:          s.node.Generate().String(),
		TenantID:    tenantID,
		SubjectType: subjectType,
		SubjectID:   subjectID,
		Content:     content,
		JobState:    jobengine.NewState(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

// Sweep runs one engine tick.
func (s *Service) Sweep(ctx context.Context) error {
	_, err := s.engine.RunTick(ctx)
	return err
}

func (s *Service) Interval() time.Duration {
	if s.interval <= 0 {
		return 15 * time.Second
	}
	return s.interval
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDur(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}
