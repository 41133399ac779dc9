package media

import (
	"time"

	"streamcoin-core/services/jobengine"
)

// EncodeJob is one uploaded media file queued for normalization into a
// playback-safe rendition.
type EncodeJob struct {
	ID         string `gorm:"column:id;primaryKey"`
	TenantID   string `gorm:"column:tenant_id;index"`
	SourcePath string `gorm:"column:source_path"`
	OutputPath string `gorm:"column:output_path"`
	MaxHeight  int    `gorm:"column:max_height"`
	ObjectKey  string `gorm:"column:object_key"`

	jobengine.JobState `gorm:"embedded"`

	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (EncodeJob) TableName() string { return "media_encode_jobs" }

func (j *EncodeJob) JobID() string { return j.ID }

func (j *EncodeJob) State() *jobengine.JobState { return &j.JobState }
