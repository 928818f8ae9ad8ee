package chunk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lbakyl/rClone-chunking/internal/utils"
)

// WriteSet slices srcPath into the chunks described by plan, writing them
// into dir. Strides are read sequentially from offset 0, so identical
// (file bytes, chunk size) inputs always produce byte-identical chunks.
//
// On failure the partially written set is left in place: the next run's
// validation sees a count or size mismatch and regenerates, so no in-run
// rollback is needed.
func WriteSet(srcPath string, plan Plan, dir string) (Set, error) {
	if err := utils.EnsureDirectoryExists(dir); err != nil {
		return nil, fmt.Errorf("create chunk directory: %w", err)
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return nil, fmt.Errorf("open source %s: %w", srcPath, err)
	}
	defer src.Close()

	count := plan.Count()
	set := make(Set, 0, count)

	for i := 0; i < count; i++ {
		path := filepath.Join(dir, ChunkName(i+1))
		size, err := writeChunk(src, path, plan.SizeAt(i))
		if err != nil {
			return nil, fmt.Errorf("write chunk %d of %s: %w", i+1, srcPath, err)
		}
		set = append(set, Chunk{Index: i + 1, Path: path, Size: size})
	}

	return set, nil
}

func writeChunk(src io.Reader, path string, size int64) (int64, error) {
	out, err := os.Create(path)
	if err != nil {
		return 0, err
	}

	written, err := io.CopyN(out, src, size)
	if err != nil {
		out.Close()
		return written, err
	}

	return written, out.Close()
}
