package media

import (
	"context"
	"fmt"
	"os"
	"time"

	"streamcoin-core/pkg/config"
	"streamcoin-core/pkg/ffmpeg"
	"streamcoin-core/services/jobengine"

	"github.com/bwmarrin/snowflake"
	minio "github.com/minio/minio-go/v7"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	store  *minio.Client
	bucket string
	engine *jobengine.Engine[EncodeJob, *EncodeJob]

	interval time.Duration
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Node   *snowflake.Node
	Config *config.Config

	Store *minio.Client `optional:"true"`
}

func NewService(p ServiceParams) *Service {
	qc := p.Config.Worker.Media

	s := &Service{
		db:       p.DB,
		node:     p.Node,
		store:    p.Store,
		bucket:   p.Config.Minio.BucketName,
		interval: qc.Interval,
	}

	s.engine = jobengine.New[EncodeJob, *EncodeJob](p.DB, jobengine.Config{
		Name:        "media",
		BatchSize:   orDefaultInt(qc.BatchSize, 5),
		MaxRetries:  orDefaultInt(qc.MaxRetries, 3),
		StuckAfter:  orDefaultDur(qc.StuckAfter, 30*time.Minute),
		WorkTimeout: orDefaultDur(qc.WorkTimeout, 10*time.Minute),
		BackoffBase: orDefaultDur(qc.BackoffBase, time.Minute),
		BackoffCap:  orDefaultDur(qc.BackoffCap, 30*time.Minute),
		Concurrency: qc.Concurrency,
	}, s.encode).WithEligible(sourcePresent)

	return s
}

// sourcePresent keeps jobs whose upload has not landed on this instance's
// disk from being claimed at all; another instance holding the file will
// pick them up.
func sourcePresent(job *EncodeJob) bool {
	_, err := os.Stat(job.SourcePath)
	return err == nil
}

func (s *Service) encode(ctx context.Context, job *EncodeJob) error {
	codec, width, height, err := ffmpeg.Probe(ctx, job.SourcePath)
	if err != nil {
		return err
	}
	zap.L().Info("media: probed source",
		zap.String("job_id", job.ID),
		zap.String("codec", codec),
		zap.Int("width", width),
		zap.Int("height", height),
	)

	if err := ffmpeg.Normalize(ctx, job.SourcePath, job.OutputPath, job.MaxHeight); err != nil {
		return err
	}

	if s.store != nil {
		key := job.ObjectKey
		if key == "" {
			key = fmt.Sprintf("%s/%s.mp4", job.TenantID, job.ID)
		}
		if _, err := s.store.FPutObject(ctx, s.bucket, key, job.OutputPath, minio.PutObjectOptions{
			ContentType: "video/mp4",
		}); err != nil {
			return err
		}
		if err := s.db.WithContext(ctx).Model(&EncodeJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]any{
				"object_key": key,
				"updated_at": time.Now(),
			}).Error; err != nil {
			return err
		}
	}

	return nil
}

// Enqueue queues one file for normalization.
func (s *Service) Enqueue(ctx context.Context, tenantID, sourcePath, outputPath string, maxHeight int) (*EncodeJob, error) {
	now := time.Now()
	job := &EncodeJob{
		ID:         s.node.Generate().String(),
		TenantID:   tenantID,
		SourcePath: sourcePath,
		OutputPath: outputPath,
		MaxHeight:  maxHeight,
		JobState:   jobengine.NewState(),
		CreatedAt:  now,
		UpdatedAt:  now,
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
		return 30 * time.Second
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
