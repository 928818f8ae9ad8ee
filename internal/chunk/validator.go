package chunk

// Reason tags why a chunk set failed validation. A failed validation is a
// regeneration signal, not an error: the orchestrator deletes the set on
// source and destination and re-chunks.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonMissingDir     Reason = "missing_chunk_dir"
	ReasonCountMismatch  Reason = "count_mismatch"
	ReasonSizeMismatch   Reason = "size_mismatch"
	ReasonStaleChunkSize Reason = "stale_chunksize"
)

// Validation is the tagged result of a chunk-set check.
type Validation struct {
	OK     bool
	Reason Reason
}

func valid() Validation           { return Validation{OK: true} }
func invalid(r Reason) Validation { return Validation{Reason: r} }

// Validate compares an on-disk chunk set against the plan implied by the
// current file size and chunk-size setting. Read-only: it never touches
// the filesystem, the caller passes in the listed set.
//
// A set that is internally consistent under a different stride is reported
// as stale_chunksize (the setting changed between runs); anything else is a
// count or size mismatch.
func Validate(fileSize int64, set Set, chunkSize int64) Validation {
	if len(set) == 0 {
		return invalid(ReasonMissingDir)
	}

	if consistent(set, chunkSize, fileSize) {
		return valid()
	}

	if stride := set[0].Size; stride != chunkSize && consistent(set, stride, fileSize) {
		return invalid(ReasonStaleChunkSize)
	}

	if len(set) != NewPlan(fileSize, chunkSize).Count() {
		return invalid(ReasonCountMismatch)
	}

	return invalid(ReasonSizeMismatch)
}

// consistent reports whether the set is exactly what chunking fileSize with
// the given stride would produce: right count, full stride everywhere but
// the last chunk, remainder on the last, and total equal to the file size
// (the total is a cross-check against stale reads).
func consistent(set Set, stride, fileSize int64) bool {
	if stride <= 0 {
		return false
	}
	plan := NewPlan(fileSize, stride)
	if len(set) != plan.Count() {
		return false
	}
	for i, c := range set {
		if c.Size != plan.SizeAt(i) {
			return false
		}
	}
	return set.TotalSize() == fileSize
}
