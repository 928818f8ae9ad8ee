package models

import "time"

// RunReport collects per-run statistics. One report is produced per sync
// run; watch mode produces a fresh report for every triggered run.
type RunReport struct {
	RunID             string        `json:"run_id"`
	StartedAt         time.Time     `json:"started_at"`
	FinishedAt        time.Time     `json:"finished_at"`
	FilesSeen         int           `json:"files_seen"`
	FilesSkipped      int           `json:"files_skipped"`
	FilesCopied       int           `json:"files_copied"`
	ChunksTransferred int           `json:"chunks_transferred"`
	SetsRebuilt       int           `json:"sets_rebuilt"`
	BytesSeen         int64         `json:"bytes_seen"`
	Failures          []ItemFailure `json:"failures"`
}

// ItemFailure records one failed item. A failure never aborts the run.
type ItemFailure struct {
	Path string `json:"path"`
	Op   string `json:"op"` // "chunk", "copy", "delete", "purge"
	Err  string `json:"err"`
}

func (r *RunReport) AddFailure(path, op string, err error) {
	r.Failures = append(r.Failures, ItemFailure{Path: path, Op: op, Err: err.Error()})
}

type FileEvent struct {
	Path      string
	Operation string // CREATE, MODIFY, DELETE
	Timestamp time.Time
}
