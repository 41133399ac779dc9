package outbox

import (
	"context"
	"time"

	"streamcoin-core/pkg/config"
	"streamcoin-core/pkg/errutil"
	"streamcoin-core/pkg/rediskey"
	"streamcoin-core/services/jobengine"
	"streamcoin-core/services/scheduler"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// Deliverer sends one message to its platform. One implementation per
// platform; it knows nothing about the engine's retry bookkeeping.
type Deliverer interface {
	Deliver(ctx context.Context, msg *Message) error
}

type Service struct {
	db     *gorm.DB
	node   *snowflake.Node
	engine *jobengine.Engine[Message, *Message]

	interval time.Duration
}

type ServiceParams struct {
	fx.In
	DB        *gorm.DB
	Node      *snowflake.Node
	Config    *config.Config
	Locker    scheduler.Locker
	Deliverer Deliverer
}

func NewService(p ServiceParams) *Service {
	qc := p.Config.Worker.Outbox

	s := &Service{
		db:       p.DB,
		node:     p.Node,
		interval: qc.Interval,
	}

	s.engine = jobengine.New[Message, *Message](p.DB, jobengine.Config{
		Name:        "outbox",
		BatchSize:   orDefaultInt(qc.BatchSize, 25),
		MaxRetries:  orDefaultInt(qc.MaxRetries, 3),
		StuckAfter:  orDefaultDur(qc.StuckAfter, 5*time.Minute),
		WorkTimeout: orDefaultDur(qc.WorkTimeout, 30*time.Second),
		BackoffBase: orDefaultDur(qc.BackoffBase, 10*time.Second),
		BackoffCap:  orDefaultDur(qc.BackoffCap, 5*time.Minute),
		Concurrency: qc.Concurrency,
	}, s.deliver(p.Locker, p.Deliverer))

	return s
}

// deliver wraps the platform deliverer in the per-recipient lock. Row
// claiming already guarantees one worker per message; the recipient lock
// additionally serializes messages aimed at the same recipient across the
// batch and across instances. A busy lock is a transient failure: the engine
// backs the message off and the batch moves on.
func (s *Service) deliver(locker scheduler.Locker, deliverer Deliverer) jobengine.WorkFunc[Message] {
	return func(ctx context.Context, msg *Message) error {
		key := rediskey.BuildRecipientLockKey(msg.Platform, msg.RecipientID)
		release, ok, err := locker.Acquire(ctx, key)
		if err != nil {
			return err
		}
		defer release()
		if !ok {
			return errutil.Unavailable("recipient delivery lock busy")
		}

		return deliverer.Deliver(ctx, msg)
	}
}

// Enqueue queues one message for delivery.
func (s *Service) Enqueue(ctx context.Context, tenantID, platform, recipientID, channelID, body string) (*Message, error) {
	now := time.Now()
	msg := &Message{
		ID:          s.node.Generate().String(),
		TenantID:    tenantID,
		Platform:    platform,
		RecipientID: recipientID,
		ChannelID:   channelID,
		Body:        body,
		JobState:    jobengine.NewState(),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(msg).Error; err != nil {
		return nil, err
	}
	return msg, nil
}

// Sweep runs one engine tick.
func (s *Service) Sweep(ctx context.Context) error {
	_, err := s.engine.RunTick(ctx)
	return err
}

func (s *Service) Interval() time.Duration {
	if s.interval <= 0 {
		return 5 * time.Second
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
