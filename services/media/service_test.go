package media

import (
	"context"
	"os"
	"path/filepath"
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

func newTestService(t *testing.T) (*Service, *gorm.DB) {
	t.Helper()

	gdb := testutil.NewTestDB(t, &EncodeJob{})

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(ServiceParams{
		DB:     gdb,
		Node:   node,
		Config: &config.Config{},
	})
	return svc, gdb
}

func TestEnqueue(t *testing.T) {
	svc, gdb := newTestService(t)

	job, err := svc.Enqueue(context.Background(), "tenant-1", "/uploads/clip.raw", "/renditions/clip.mp4", 720)
	require.NoError(t, err)
	require.NotEmpty(t, job.ID)

	var stored EncodeJob
	require.NoError(t, gdb.Where("id = ?", job.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusPending, stored.Status)
	require.Equal(t, 720, stored.MaxHeight)
}

func TestSweepSkipsJobWithoutLocalSource(t *testing.T) {
	svc, gdb := newTestService(t)
	ctx := context.Background()

	// The upload lives on a different instance's disk; this instance must
	// leave the row alone instead of burning a retry.
	job, err := svc.Enqueue(ctx, "tenant-1", "/nonexistent/upload.raw", "/renditions/out.mp4", 720)
	require.NoError(t, err)

	require.NoError(t, svc.Sweep(ctx))

	var stored EncodeJob
	require.NoError(t, gdb.Where("id = ?", job.ID).First(&stored).Error)
	require.Equal(t, jobengine.StatusPending, stored.Status)
	require.Equal(t, 0, stored.RetryCount)
}

func TestSourcePresent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.raw")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	require.True(t, sourcePresent(&EncodeJob{SourcePath: path}))
	require.False(t, sourcePresent(&EncodeJob{SourcePath: filepath.Join(dir, "missing.raw")}))
}
