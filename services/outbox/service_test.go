package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"streamcoin-core/pkg/config"
	"streamcoin-core/services/jobengine"
	"streamcoin-core/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]bool)}
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[key] {
		return func() {}, false, nil
	}
	l.held[key] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.held, key)
		})
	}
	return release, true, nil
}

type fakeDeliverer struct {
	mu        sync.Mutex
	delivered []*Message
	err       error
}

func (f *fakeDeliverer) Deliver(ctx context.Context, msg *Message) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, msg)
	return nil
}

func newTestService(t *testing.T, locker *fakeLocker, deliverer Deliverer) (*Service, *gorm.DB) {
	t.Helper()

	gdb := testutil.NewTestDB(t, &Message{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:        gdb,
		Node:      node,
		Config:    &config.Config{},
		Locker:    locker,
		Deliverer: deliverer,
	})
	return svc, gdb
}

func TestSweepDeliversMessage(t *testing.T) {
	deliverer := &fakeDeliverer{}
	svc, gdb := newTestService(t, newFakeLocker(), deliverer)
	ctx := context.Background()

	msg, err := svc.Enqueue(ctx, "tenant-1", "twitch", "viewer-42", "channel-1", "you earned 250 coins")
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	require.Len(t, deliverer.delivered, 1)
	require.Equal(t, "you earned 250 coins", deliverer.delivered[0].Body)

	var stored Message
	require.NoError(t, gdb.Where("id = ?", msg.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusDone, stored.Status)
}

func TestSweepRetriesDeliveryFailure(t *testing.T) {
	deliverer := &fakeDeliverer{err: errors.New("platform rate limited")}
	svc, gdb := newTestService(t, newFakeLocker(), deliverer)
	ctx := context.Background()

	msg, err := svc.Enqueue(ctx, "tenant-1", "twitch", "viewer-42", "channel-1", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	var stored Message
	require.NoError(t, gdb.Where("id = ?", msg.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusFailed, stored.Status)
	require.Equal(t, 1, stored.RetryCount)
	require.Contains(t, stored.LastError, "platform rate limited")
}

func TestSweepBacksOffWhenRecipientLockBusy(t *testing.T) {
	locker := newFakeLocker()
	deliverer := &fakeDeliverer{}
	svc, gdb := newTestService(t, locker, deliverer)
	ctx := context.Background()

	msg, err := svc.Enqueue(ctx, "tenant-1", "twitch", "viewer-42", "channel-1", "hello")
	require.NoError(t, err)

	// Another instance is mid-delivery to the same recipient.
	release, ok, err := locker.Acquire(ctx, "outbox:recipient:twitch:viewer-42")
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	require.NoError(t, svc.Sweep(ctx))

	require.Empty(t, deliverer.delivered)

	var stored Message
	require.NoError(t, gdb.Where("id = ?", msg.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusFailed, stored.Status)
	require.Contains(t, stored.LastError, "lock busy")

	// Once the lock frees up and the backoff elapses, delivery goes through.
	release()
	require.NoError(t, gdb.Model(&Message{}).Where("id = ?", msg.ID).
		Update("next_retry_at", stored.CreatedAt).Error)

	require.NoError(t, svc.Sweep(ctx))
	require.Len(t, deliverer.delivered, 1)
}
