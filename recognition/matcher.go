package recognition

import (
	"errors"
	"fmt"
	"math"
	"sync/atomic"
)

// Unknown is the label given to faces that match no known face.
const Unknown = "UNKNOWN"

// DefaultTolerance is the Euclidean distance under which two embeddings are the same person.
const DefaultTolerance = 0.6

var ErrInvalidEmbedding = errors.New("recognition: invalid embedding")

// KnownFace is one gallery entry.
type KnownFace struct {
	Name      string
	Embedding []float32
}

// index is an immutable snapshot; it is replaced wholesale, never patched.
type index struct {
	faces []KnownFace
	dim   int
}

// Matcher resolves probe embeddings to known names.
type Matcher struct {
	tolerance float64
	current   atomic.Pointer[index]
}

func NewMatcher(tolerance float64) *Matcher {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	m := &Matcher{tolerance: tolerance}
	m.current.Store(&index{})
	return m
}

func (m *Matcher) Tolerance() float64 {
	return m.tolerance
}

// Replace builds a new index from faces and swaps it in. All embeddings must
// share one non-zero dimensionality.
func (m *Matcher) Replace(faces []KnownFace) error {
	next := &index{faces: make([]KnownFace, 0, len(faces))}
	for _, f := range faces {
		if len(f.Embedding) == 0 {
			return fmt.Errorf("%w: empty embedding for %q", ErrInvalidEmbedding, f.Name)
		}
		if next.dim == 0 {
			next.dim = len(f.Embedding)
		} else if len(f.Embedding) != next.dim {
			return fmt.Errorf("%w: %q has %d dimensions, gallery uses %d", ErrInvalidEmbedding, f.Name, len(f.Embedding), next.dim)
		}
		emb := make([]float32, len(f.Embedding))
		copy(emb, f.Embedding)
		next.faces = append(next.faces, KnownFace{Name: f.Name, Embedding: emb})
	}
	m.current.Store(next)
	return nil
}

// Len returns the number of known faces in the current index.
func (m *Matcher) Len() int {
	return len(m.current.Load().faces)
}

// Names returns the names in the current index in gallery order.
func (m *Matcher) Names() []string {
	idx := m.current.Load()
	names := make([]string, len(idx.faces))
	for i, f := range idx.faces {
		names[i] = f.Name
	}
	return names
}

// Recognize returns the name of the nearest known face when it lies within
// tolerance, and Unknown otherwise. An empty gallery always yields Unknown.
func (m *Matcher) Recognize(probe []float32) (string, error) {
	idx := m.current.Load()
	if len(idx.faces) == 0 {
		return Unknown, nil
	}
	if len(probe) != idx.dim {
		return "", fmt.Errorf("%w: probe has %d dimensions, gallery uses %d", ErrInvalidEmbedding, len(probe), idx.dim)
	}

	best := -1
	bestDist := math.Inf(1)
	for i, f := range idx.faces {
		d := Distance(f.Embedding, probe)
		if d < bestDist {
			best, bestDist = i, d
		}
	}
	if best < 0 || bestDist >= m.tolerance {
		return Unknown, nil
	}
	return idx.faces[best].Name, nil
}

// Distance is the Euclidean distance between two equal-length embeddings.
func Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
