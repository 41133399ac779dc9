package outbox

import (
	"time"

	"streamcoin-core/services/jobengine"
)

// Message is one outbound chat message awaiting delivery to a platform
// recipient.
type Message struct {
	ID          string `gorm:"column:id;primaryKey"`
	TenantID    string `gorm:"column:tenant_id;index"`
	Platform    string `gorm:"column:platform"`
	RecipientID string `gorm:"column:recipient_id;index"`
	ChannelID   string `gorm:"column:channel_id"`
	Body        string `gorm:"column:body"`

	jobengine.JobState `gorm:"embedded"`

	CreatedAt time.Time `gorm:"column:created_at;index"`
	UpdatedAt time.Time `gorm:"column:updated_at"`
}

func (Message) TableName() string { return "outbox_messages" }

func (m *Message) JobID() string { return m.ID }

func (m *Message) State() *jobengine.JobState { return &m.JobState }
