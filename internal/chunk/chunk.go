package chunk

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Chunks for a large file X live in a hidden directory next to X named
// ".X.chunks". Chunk files are named chunk_000001, chunk_000002, ... so a
// plain sorted directory listing yields them in byte order.
const (
	SetDirSuffix    = ".chunks"
	chunkNameFormat = "chunk_%06d"
)

// Chunk is one contiguous byte range of a source file, stored on disk.
type Chunk struct {
	Index int // 1-based position within the set
	Path  string
	Size  int64
}

// Set is the ordered chunk list for one source file. It is derived state:
// always reproducible from (file bytes, chunk size), never authoritative.
type Set []Chunk

func (s Set) TotalSize() int64 {
	var total int64
	for _, c := range s {
		total += c.Size
	}
	return total
}

// SetDir returns the chunk directory for the given source file.
func SetDir(path string) string {
	return filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+SetDirSuffix)
}

// IsSetDir reports whether a directory name is a chunk directory. The
// walker uses this to keep chunk files out of the regular file stream.
func IsSetDir(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, SetDirSuffix)
}

// ChunkName returns the file name for the 1-based chunk index.
func ChunkName(index int) string {
	return fmt.Sprintf(chunkNameFormat, index)
}

// LoadSet lists an existing chunk directory. Every regular entry counts as
// a chunk: stray files make the set invalid by count, which is exactly what
// the validator should see. Returns os.ErrNotExist if the directory is gone.
func LoadSet(dir string) (Set, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var set Set
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat chunk %s: %w", entry.Name(), err)
		}
		set = append(set, Chunk{
			Index: len(set) + 1,
			Path:  filepath.Join(dir, entry.Name()),
			Size:  info.Size(),
		})
	}

	return set, nil
}

// Rebuild concatenates the chunks of a set, in order, into dstPath. Used to
// reassemble a file from its chunk set; the result is byte-identical to the
// original source file.
func Rebuild(set Set, dstPath string) error {
	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", dstPath, err)
	}

	for _, c := range set {
		src, err := os.Open(c.Path)
		if err != nil {
			dst.Close()
			return fmt.Errorf("open chunk %s: %w", c.Path, err)
		}
		_, err = io.Copy(dst, src)
		src.Close()
		if err != nil {
			dst.Close()
			return fmt.Errorf("append chunk %s: %w", c.Path, err)
		}
	}

	return dst.Close()
}
