package reward

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

type fakeNotifier struct {
	delivered []CoinsClaimedPayload
	err       error
}

func (f *fakeNotifier) NotifyCoinsClaimed(ctx context.Context, p CoinsClaimedPayload) error {
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, p)
	return nil
}

func TestHandleCoinsClaimedTask(t *testing.T) {
	svc, _, _ := newTestService(t)
	notifier := &fakeNotifier{}
	handler := svc.HandleCoinsClaimedTask(notifier)

	payload := CoinsClaimedPayload{UserID: "user-1", TenantID: "tenant-1", Delta: 250, Balance: 250}
	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	err = handler(context.Background(), asynq.NewTask(TaskCoinsClaimed, raw))
	require.NoError(t, err)
	require.Len(t, notifier.delivered, 1)
	require.Equal(t, payload, notifier.delivered[0])
}

func TestHandleCoinsClaimedTaskNotifierError(t *testing.T) {
	svc, _, _ := newTestService(t)
	boom := errors.New("push gateway down")
	handler := svc.HandleCoinsClaimedTask(&fakeNotifier{err: boom})

	raw, err := json.Marshal(CoinsClaimedPayload{UserID: "user-1"})
	require.NoError(t, err)

	// The error propagates so asynq retries the notification.
	err = handler(context.Background(), asynq.NewTask(TaskCoinsClaimed, raw))
	require.ErrorIs(t, err, boom)
}

func TestHandleCoinsClaimedTaskBadPayload(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := svc.HandleCoinsClaimedTask(&fakeNotifier{})

	err := handler(context.Background(), asynq.NewTask(TaskCoinsClaimed, []byte("not json")))
	require.Error(t, err)
}

func TestHandleCoinsClaimedTaskWithoutNotifier(t *testing.T) {
	svc, _, _ := newTestService(t)
	handler := svc.HandleCoinsClaimedTask(nil)

	raw, err := json.Marshal(CoinsClaimedPayload{UserID: "user-1"})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), asynq.NewTask(TaskCoinsClaimed, raw)))
}
