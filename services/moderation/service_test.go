package moderation

import (
	"context"
	"errors"
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

type fakeAnalyzer struct {
	analyzeFn func(ctx context.Context, job *Job) (Result, error)
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, job *Job) (Result, error) {
	if f.analyzeFn != nil {
		return f.analyzeFn(ctx, job)
	}
	return Result{Verdict: VerdictApproved}, nil
}

func newTestService(t *testing.T, analyzer Analyzer) (*Service, *gorm.DB) {
	t.Helper()

	gdb := testutil.NewTestDB(t, &Job{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:       gdb,
		Node:     node,
		Config:   &config.Config{},
		Analyzer: analyzer,
	})
	return svc, gdb
}

func TestEnqueue(t *testing.T) {
	svc, gdb := newTestService(t, &fakeAnalyzer{})

	job, err := svc.Enqueue(context.Background(), "tenant-1", "chat_message", "msg-1", "hello chat")
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	var stored Job
	require.NoError(t, gdb.Where("id = ?", job.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusPending, stored.Status)
	require.Equal(t, "hello chat", stored.Content)
}

func TestSweepWritesVerdict(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyzeFn: func(ctx context.Context, job *Job) (Result, error) {
			return Result{Verdict: VerdictFlagged, Severity: 2}, nil
		},
	}
	svc, gdb := newTestService(t, analyzer)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "tenant-1", "chat_message", "msg-1", "sus content")
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	var stored Job
	require.NoError(t, gdb.Where("id = ?", job.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusDone, stored.Status)
	require.Equal(t, VerdictFlagged, stored.Verdict)
	require.Equal(t, 2, stored.Severity)
}

func TestSweepRetriesAnalyzerFailure(t *testing.T) {
	analyzer := &fakeAnalyzer{
		analyzeFn: func(ctx context.Context, job *Job) (Result, error) {
			return Result{}, errors.New("model endpoint 503")
		},
	}
	svc, gdb := newTestService(t, analyzer)
	ctx := context.Background()

	job, err := svc.Enqueue(ctx, "tenant-1", "chat_message", "msg-1", "hello")
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	var stored Job
	require.NoError(t, gdb.Where("id = ?", job.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusFailed, stored.Status)
	require.Equal(t, 1, stored.RetryCount)
	require.Contains(t, stored.LastError, "model endpoint 503")
	require.Empty(t, stored.Verdict)
}

func TestIntervalDefault(t *testing.T) {
	svc, _ := newTestService(t, &fakeAnalyzer{})
	require.Positive(t, svc.Interval())
}
