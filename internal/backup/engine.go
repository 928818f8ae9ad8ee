package backup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lbakyl/rClone-chunking/internal/chunk"
	"github.com/lbakyl/rClone-chunking/internal/config"
	"github.com/lbakyl/rClone-chunking/internal/transfer"
	"github.com/lbakyl/rClone-chunking/pkg/models"
)

/*
Engine drives one sync run end to end:
1. Walk the source tree (chunk directories are skipped).
2. Classify every file small/large by current size.
3. Large files: validate the existing chunk set, delete and re-chunk when
   invalid, then transfer every chunk.
4. Small files: drop any leftover chunk set, then copy the file whole.

Per-item failures are logged and counted; they never abort the run.
*/
type Engine struct {
	cfg       *config.Config
	transport transfer.Transport
	log       *zap.SugaredLogger
}

func NewEngine(cfg *config.Config, transport transfer.Transport, log *zap.SugaredLogger) *Engine {
	return &Engine{
		cfg:       cfg,
		transport: transport,
		log:       log,
	}
}

// Run processes every file under the source directory once. The returned
// report is valid even when err is non-nil (cancelled mid-run).
func (e *Engine) Run(ctx context.Context) (*models.RunReport, error) {
	report := &models.RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
	}

	e.log.Infow("starting sync run",
		"run_id", report.RunID,
		"source", e.cfg.SourceDir,
		"dest", e.remotePath("."),
		"threshold_bytes", e.cfg.ThresholdBytes,
		"chunk_size_bytes", e.cfg.ChunkSizeBytes,
		"dry_run", e.cfg.DryRun,
	)

	err := filepath.WalkDir(e.cfg.SourceDir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			e.log.Warnw("walk error, skipping entry", "path", p, "error", walkErr)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if chunk.IsSetDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if e.shouldSkip(d.Name()) {
			report.FilesSkipped++
			return nil
		}

		info, err := d.Info()
		if err != nil {
			// The file vanished between listing and stat; the next run
			// picks it up if it comes back.
			e.log.Warnw("stat failed, skipping file", "path", p, "error", err)
			report.AddFailure(p, "stat", err)
			return nil
		}

		report.FilesSeen++
		report.BytesSeen += info.Size()
		e.processFile(ctx, p, info.Size(), report)
		return nil
	})

	report.FinishedAt = time.Now()

	e.log.Infow("sync run finished",
		"run_id", report.RunID,
		"files_seen", report.FilesSeen,
		"files_skipped", report.FilesSkipped,
		"files_copied", report.FilesCopied,
		"chunks_transferred", report.ChunksTransferred,
		"sets_rebuilt", report.SetsRebuilt,
		"bytes_seen", report.BytesSeen,
		"failures", len(report.Failures),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	return report, err
}

func (e *Engine) shouldSkip(name string) bool {
	for _, ext := range e.cfg.SkipExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// Classification is purely by current size, every run. A file that grew
// past the threshold gets chunked and its stale whole-file copy removed; a
// file that shrank below it gets its chunk set dropped on both sides and is
// copied whole again.
func (e *Engine) processFile(ctx context.Context, p string, size int64, report *models.RunReport) {
	rel, err := filepath.Rel(e.cfg.SourceDir, p)
	if err != nil {
		e.log.Errorw("cannot relativize path", "path", p, "error", err)
		report.AddFailure(p, "rel", err)
		return
	}

	switch chunk.Classify(size, e.cfg.ThresholdBytes) {
	case chunk.ClassSmall:
		e.syncSmall(ctx, p, rel, report)
	case chunk.ClassLarge:
		e.syncLarge(ctx, p, rel, size, report)
	}
}

func (e *Engine) syncSmall(ctx context.Context, p, rel string, report *models.RunReport) {
	setDir := chunk.SetDir(p)
	if _, err := os.Stat(setDir); err == nil {
		// Previously large, now at or below the threshold.
		e.log.Infow("file shrank below threshold, dropping chunk set", "path", rel)
		e.dropSet(ctx, p, setDir, report)
	}

	if e.cfg.DryRun {
		e.log.Infow("dry-run: would copy file", "path", rel)
		return
	}

	if err := e.transport.Copy(ctx, p, e.remotePath(rel)); err != nil {
		e.log.Errorw("file transfer failed", "path", rel, "error", err)
		report.AddFailure(p, "copy", err)
		return
	}
	report.FilesCopied++
}

func (e *Engine) syncLarge(ctx context.Context, p, rel string, size int64, report *models.RunReport) {
	setDir := chunk.SetDir(p)

	set, err := chunk.LoadSet(setDir)
	fresh := errors.Is(err, fs.ErrNotExist)
	if err != nil && !fresh {
		e.log.Errorw("cannot list chunk directory", "path", rel, "error", err)
		report.AddFailure(p, "chunk", err)
		return
	}

	rebuild := fresh
	if !fresh {
		if v := chunk.Validate(size, set, e.cfg.ChunkSizeBytes); !v.OK {
			e.log.Infow("chunk set invalid, regenerating",
				"path", rel, "reason", string(v.Reason), "chunks_found", len(set))
			e.dropSet(ctx, p, setDir, report)
			rebuild = true
		}
	}

	if rebuild {
		if e.cfg.DryRun {
			e.log.Infow("dry-run: would chunk file",
				"path", rel, "chunks", chunk.NewPlan(size, e.cfg.ChunkSizeBytes).Count())
			return
		}
		set, err = chunk.WriteSet(p, chunk.NewPlan(size, e.cfg.ChunkSizeBytes), setDir)
		if err != nil {
			// Partial output stays behind; the next run's validation
			// catches it and re-chunks.
			e.log.Errorw("chunking failed", "path", rel, "error", err)
			report.AddFailure(p, "chunk", err)
			return
		}
		report.SetsRebuilt++

		if fresh {
			// The file may have been copied whole on an earlier run, before
			// it grew past the threshold. Absence of that copy is fine.
			if err := e.transport.Delete(ctx, e.remotePath(rel)); err != nil {
				e.log.Debugw("no stale whole-file copy to remove", "path", rel, "error", err)
			}
		}
	}

	if e.cfg.DryRun {
		e.log.Infow("dry-run: would transfer chunks", "path", rel, "chunks", len(set))
		return
	}

	// Transfer every chunk; rclone's own comparison skips chunks whose
	// content already matches the destination.
	relSet, err := filepath.Rel(e.cfg.SourceDir, setDir)
	if err != nil {
		e.log.Errorw("cannot relativize chunk directory", "path", setDir, "error", err)
		report.AddFailure(p, "rel", err)
		return
	}
	for _, c := range set {
		if ctx.Err() != nil {
			return
		}
		remote := e.remotePath(path.Join(filepath.ToSlash(relSet), chunk.ChunkName(c.Index)))
		if err := e.transport.Copy(ctx, c.Path, remote); err != nil {
			e.log.Errorw("chunk transfer failed",
				"path", rel, "chunk", c.Index, "error", err)
			report.AddFailure(c.Path, "copy", err)
			continue
		}
		report.ChunksTransferred++
	}
}

// dropSet removes a chunk set on the source and purges its mirror on the
// destination. Failures are recorded but do not stop regeneration: a
// half-removed set fails validation again on the next run.
func (e *Engine) dropSet(ctx context.Context, p, setDir string, report *models.RunReport) {
	if e.cfg.DryRun {
		e.log.Infow("dry-run: would drop chunk set", "path", setDir)
		return
	}

	if err := os.RemoveAll(setDir); err != nil {
		e.log.Errorw("cannot remove source chunk directory", "path", setDir, "error", err)
		report.AddFailure(p, "delete", err)
	}

	relSet, err := filepath.Rel(e.cfg.SourceDir, setDir)
	if err != nil {
		e.log.Errorw("cannot relativize chunk directory", "path", setDir, "error", err)
		report.AddFailure(p, "rel", err)
		return
	}
	if err := e.transport.Purge(ctx, e.remotePath(filepath.ToSlash(relSet))); err != nil {
		e.log.Warnw("cannot purge destination chunk directory",
			"path", relSet, "error", err)
		report.AddFailure(p, "purge", err)
	}
}

// remotePath maps a source-relative path to its rclone destination, e.g.
// "sub/video.mkv" -> "box:backups/sub/video.mkv".
func (e *Engine) remotePath(rel string) string {
	return e.cfg.Remote + ":" + path.Join(e.cfg.DestDir, filepath.ToSlash(rel))
}
