package chunk

// Class tags a file as directly copyable or in need of chunking.
type Class int

const (
	ClassSmall Class = iota
	ClassLarge
)

func (c Class) String() string {
	if c == ClassLarge {
		return "large"
	}
	return "small"
}

// Classify applies the large-file cutoff. Files at exactly the threshold
// are still copied whole; only strictly larger files are chunked.
func Classify(size, threshold int64) Class {
	if size <= threshold {
		return ClassSmall
	}
	return ClassLarge
}
