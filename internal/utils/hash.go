package utils

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

func CalculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}

// CalculateSectionHash hashes size bytes of the file starting at offset.
// Deep verification uses it to compare a chunk file against the byte range
// of the source file it was sliced from.
func CalculateSectionHash(filePath string, offset, size int64) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	section := io.NewSectionReader(file, offset, size)
	if _, err := io.Copy(hash, section); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), nil
}
