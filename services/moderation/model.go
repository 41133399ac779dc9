package moderation

import (
	"time"

	"streamcoin-core/services/jobengine"
)

// Verdict outcomes written back by the analyzer.
const (
	VerdictApproved = "approved"
	VerdictFlagged  = "flagged"
	VerdictRejected = "rejected"
)

// Job is one piece of user content queued for moderation analysis.
type Job struct {
	ID          string `gorm:"column:id;primaryKey"`
	TenantID    string `gorm:"column:tenant_id;index"`
	SubjectType string `gorm:"column:subject_type"`
	SubjectID   string `gorm:"column:subject_id"`
	Content     string `gorm:"column:content"`
	Verdict     string `gorm:"column:verdict"`
	Severity    int    `gorm:"column:severity"`

	jobengine.JobState `gorm:"embedded"`

	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Job) TableName() string { return "moderation_jobs" }

func (j *Job) JobID() string { return j.ID }

func (j *Job) State() *jobengine.JobState { return &j.JobState }
