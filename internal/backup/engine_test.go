package backup

import (
	"context"
	"crypto/rand"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lbakyl/rClone-chunking/internal/chunk"
	"github.com/lbakyl/rClone-chunking/internal/config"
	"github.com/lbakyl/rClone-chunking/internal/utils"
)

type copyCall struct {
	local  string
	remote string
}

// fakeTransport records every call so tests can assert on the exact
// transfer traffic without invoking rclone.
type fakeTransport struct {
	copies  []copyCall
	deletes []string
	purges  []string

	// failCopySubstring makes Copy fail for any local path containing it.
	failCopySubstring string
}

func (f *fakeTransport) Copy(_ context.Context, localPath, remotePath string) error {
	if f.failCopySubstring != "" && strings.Contains(localPath, f.failCopySubstring) {
		return errors.New("simulated transfer failure")
	}
	f.copies = append(f.copies, copyCall{local: localPath, remote: remotePath})
	return nil
}

func (f *fakeTransport) Delete(_ context.Context, remotePath string) error {
	f.deletes = append(f.deletes, remotePath)
	return nil
}

func (f *fakeTransport) Purge(_ context.Context, remoteDir string) error {
	f.purges = append(f.purges, remoteDir)
	return nil
}

func testConfig(sourceDir string) *config.Config {
	return &config.Config{
		SourceDir:      sourceDir,
		Remote:         "box",
		DestDir:        "backups",
		ThresholdBytes: 100,
		ChunkSizeBytes: 100,
		RefreshSeconds: 300,
		SkipExtensions: []string{".tmp"},
	}
}

func newTestEngine(cfg *config.Config) (*Engine, *fakeTransport) {
	ft := &fakeTransport{}
	return NewEngine(cfg, ft, zap.NewNop().Sugar()), ft
}

func writeFile(t *testing.T, path string, size int64) []byte {
	t.Helper()
	data := make([]byte, size)
	_, err := rand.Read(data)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
	return data
}

func TestSmallFileCopiedWhole(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "notes.txt")
	writeFile(t, path, 100) // exactly at the threshold

	engine, ft := newTestEngine(testConfig(src))
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.FilesCopied)
	require.Equal(t, 0, report.SetsRebuilt)
	require.Empty(t, report.Failures)
	require.Equal(t, []copyCall{{local: path, remote: "box:backups/notes.txt"}}, ft.copies)

	_, err = os.Stat(chunk.SetDir(path))
	require.True(t, os.IsNotExist(err), "no chunk directory for small files")
}

func TestLargeFileChunkedAndTransferred(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	engine, ft := newTestEngine(testConfig(src))
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SetsRebuilt)
	require.Equal(t, 3, report.ChunksTransferred)
	require.Empty(t, report.Failures)

	set, err := chunk.LoadSet(chunk.SetDir(path))
	require.NoError(t, err)
	require.Len(t, set, 3)
	require.Equal(t, int64(250), set.TotalSize())

	require.Len(t, ft.copies, 3)
	require.Equal(t, "box:backups/.video.mkv.chunks/chunk_000001", ft.copies[0].remote)
	require.Equal(t, "box:backups/.video.mkv.chunks/chunk_000002", ft.copies[1].remote)
	require.Equal(t, "box:backups/.video.mkv.chunks/chunk_000003", ft.copies[2].remote)

	// A freshly chunked file may have a stale whole-file copy from before
	// it crossed the threshold.
	require.Equal(t, []string{"box:backups/video.mkv"}, ft.deletes)
}

func TestNestedPathMapping(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "photos", "2024", "pic.jpg")
	writeFile(t, path, 10)

	engine, ft := newTestEngine(testConfig(src))
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, ft.copies, 1)
	require.Equal(t, "box:backups/photos/2024/pic.jpg", ft.copies[0].remote)
}

func TestSecondRunIsIdempotent(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	engine, _ := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	setDir := chunk.SetDir(path)
	hashesBefore := chunkHashes(t, setDir)

	engine2, ft2 := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 0, report.SetsRebuilt, "a valid set must not be regenerated")
	require.Empty(t, ft2.purges)
	require.Empty(t, ft2.deletes, "no fresh chunking, no stale-copy delete")
	require.Equal(t, hashesBefore, chunkHashes(t, setDir), "chunk files must be untouched")

	// Chunks are still handed to the transport; skipping unchanged content
	// is the transfer tool's job.
	require.Equal(t, 3, report.ChunksTransferred)
}

func TestChunkSizeChangeRegenerates(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	engine, _ := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	cfg.ChunkSizeBytes = 60
	engine2, ft2 := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SetsRebuilt)
	require.Equal(t, []string{"box:backups/.video.mkv.chunks"}, ft2.purges,
		"old destination chunks must be purged before re-transfer")

	set, err := chunk.LoadSet(chunk.SetDir(path))
	require.NoError(t, err)
	require.Len(t, set, 5) // ceil(250/60)
	require.Equal(t, int64(250), set.TotalSize())
	require.Equal(t, 5, report.ChunksTransferred)
}

func TestDeletedChunkTriggersRegeneration(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	engine, _ := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	setDir := chunk.SetDir(path)
	require.NoError(t, os.Remove(filepath.Join(setDir, chunk.ChunkName(2))))

	engine2, ft2 := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SetsRebuilt)
	require.Len(t, ft2.purges, 1)

	set, err := chunk.LoadSet(setDir)
	require.NoError(t, err)
	require.Len(t, set, 3)
	require.Equal(t, int64(250), set.TotalSize())
}

func TestTruncatedChunkTriggersRegeneration(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	engine, _ := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	setDir := chunk.SetDir(path)
	require.NoError(t, os.Truncate(filepath.Join(setDir, chunk.ChunkName(1)), 40))

	engine2, _ := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SetsRebuilt)
	set, err := chunk.LoadSet(setDir)
	require.NoError(t, err)
	require.Equal(t, int64(250), set.TotalSize())
}

func TestTransferFailureIsolation(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	ft := &fakeTransport{failCopySubstring: chunk.ChunkName(2)}
	engine := NewEngine(cfg, ft, zap.NewNop().Sugar())

	report, err := engine.Run(context.Background())
	require.NoError(t, err, "a failed item must not abort the run")

	require.Equal(t, 2, report.ChunksTransferred, "chunks 1 and 3 still transfer")
	require.Len(t, report.Failures, 1)
	require.Equal(t, "copy", report.Failures[0].Op)

	var remotes []string
	for _, c := range ft.copies {
		remotes = append(remotes, c.remote)
	}
	require.Contains(t, remotes, "box:backups/.video.mkv.chunks/chunk_000001")
	require.Contains(t, remotes, "box:backups/.video.mkv.chunks/chunk_000003")
}

func TestFileShrinksBelowThreshold(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)

	cfg := testConfig(src)
	engine, _ := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NoError(t, os.Truncate(path, 50))

	engine2, ft2 := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.FilesCopied)
	require.Equal(t, []string{"box:backups/.video.mkv.chunks"}, ft2.purges)

	_, err = os.Stat(chunk.SetDir(path))
	require.True(t, os.IsNotExist(err), "source chunk set must be removed")

	require.Len(t, ft2.copies, 1)
	require.Equal(t, "box:backups/video.mkv", ft2.copies[0].remote)
}

func TestFileGrowsPastThreshold(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "archive.bin")
	writeFile(t, path, 50)

	cfg := testConfig(src)
	engine, ft := newTestEngine(cfg)
	_, err := engine.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, ft.copies, 1)

	writeFile(t, path, 250)

	engine2, ft2 := newTestEngine(cfg)
	report, err := engine2.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.SetsRebuilt)
	require.Equal(t, 3, report.ChunksTransferred)
	require.Equal(t, []string{"box:backups/archive.bin"}, ft2.deletes,
		"the stale whole-file copy must be removed from the destination")
}

func TestSkipExtensions(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "scratch.tmp"), 10)
	writeFile(t, filepath.Join(src, "keep.txt"), 10)

	engine, ft := newTestEngine(testConfig(src))
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, 1, report.FilesSkipped)
	require.Equal(t, 1, report.FilesSeen)
	require.Len(t, ft.copies, 1)
	require.Equal(t, "box:backups/keep.txt", ft.copies[0].remote)
}

func TestDryRunTouchesNothing(t *testing.T) {
	src := t.TempDir()
	path := filepath.Join(src, "video.mkv")
	writeFile(t, path, 250)
	writeFile(t, filepath.Join(src, "notes.txt"), 10)

	cfg := testConfig(src)
	cfg.DryRun = true
	engine, ft := newTestEngine(cfg)

	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.Empty(t, ft.copies)
	require.Empty(t, ft.deletes)
	require.Empty(t, ft.purges)
	require.Equal(t, 0, report.SetsRebuilt)

	_, err = os.Stat(chunk.SetDir(path))
	require.True(t, os.IsNotExist(err), "dry run must not write chunks")
}

func TestRunReportCounters(t *testing.T) {
	src := t.TempDir()
	writeFile(t, filepath.Join(src, "a.txt"), 10)
	writeFile(t, filepath.Join(src, "b.txt"), 20)
	writeFile(t, filepath.Join(src, "big.bin"), 250)

	engine, _ := newTestEngine(testConfig(src))
	report, err := engine.Run(context.Background())
	require.NoError(t, err)

	require.NotEmpty(t, report.RunID)
	require.Equal(t, 3, report.FilesSeen)
	require.Equal(t, int64(280), report.BytesSeen)
	require.Equal(t, 2, report.FilesCopied)
	require.False(t, report.FinishedAt.Before(report.StartedAt))
}

func chunkHashes(t *testing.T, setDir string) map[string]string {
	t.Helper()
	set, err := chunk.LoadSet(setDir)
	require.NoError(t, err)

	hashes := make(map[string]string, len(set))
	for _, c := range set {
		h, err := utils.CalculateFileHash(c.Path)
		require.NoError(t, err)
		hashes[filepath.Base(c.Path)] = h
	}
	return hashes
}
