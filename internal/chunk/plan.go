package chunk

// Plan is the expected chunk layout for a (file size, chunk size) pair.
// The validator compares what is on disk against a Plan; the chunker
// produces exactly what a Plan describes.
type Plan struct {
	FileSize  int64
	ChunkSize int64
}

func NewPlan(fileSize, chunkSize int64) Plan {
	return Plan{FileSize: fileSize, ChunkSize: chunkSize}
}

// Count is ceil(FileSize / ChunkSize).
func (p Plan) Count() int {
	if p.FileSize <= 0 || p.ChunkSize <= 0 {
		return 0
	}
	return int((p.FileSize + p.ChunkSize - 1) / p.ChunkSize)
}

// SizeAt returns the expected size of the 0-based chunk index i. Every
// chunk has the full stride except the last, which carries the remainder
// (or a full stride when the file size divides evenly).
func (p Plan) SizeAt(i int) int64 {
	count := p.Count()
	if i < 0 || i >= count {
		return 0
	}
	if i < count-1 {
		return p.ChunkSize
	}
	last := p.FileSize - p.ChunkSize*int64(count-1)
	return last
}
