package gallery

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/camden-git/vidfaces/recognition"
	"github.com/camden-git/vidfaces/vision"
	"github.com/facette/natsort"
)

var (
	ErrInvalidName = errors.New("gallery: invalid name")
	ErrNoFace      = errors.New("gallery: no face found in reference image")
)

// GalleryLoadError describes a reference image skipped during a load.
type GalleryLoadError struct {
	File string
	Err  error
}

func (e *GalleryLoadError) Error() string {
	return fmt.Sprintf("gallery: skipped %s: %v", e.File, e.Err)
}

func (e *GalleryLoadError) Unwrap() error { return e.Err }

// LoadResult summarizes a full gallery load.
type LoadResult struct {
	Loaded  int
	Skipped []*GalleryLoadError
}

// Store manages the known-faces directory and keeps the matcher index in
// sync with it. Mutations and rebuilds are serialized; readers of the
// matcher never block on them.
type Store struct {
	dir      string
	detector vision.Detector
	matcher  *recognition.Matcher
	mu       sync.Mutex
}

// NewStore creates the gallery directory if needed. Call LoadAll to build the
// initial index.
func NewStore(dir string, detector vision.Detector, matcher *recognition.Matcher) (*Store, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("gallery: invalid directory '%s': %w", dir, err)
	}
	if err := os.MkdirAll(absDir, 0755); err != nil {
		return nil, fmt.Errorf("gallery: failed to create directory '%s': %w", absDir, err)
	}
	return &Store{dir: absDir, detector: detector, matcher: matcher}, nil
}

// Dir returns the absolute gallery directory.
func (s *Store) Dir() string { return s.dir }

// Matcher returns the index this store maintains.
func (s *Store) Matcher() *recognition.Matcher { return s.matcher }

// LoadAll rebuilds the matcher from every reference image in the directory.
// Files are visited in natural filename order; unreadable files and images
// without a face are logged and skipped.
func (s *Store) LoadAll() (LoadResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rebuild()
}

func (s *Store) rebuild() (LoadResult, error) {
	files, err := s.referenceFiles()
	if err != nil {
		return LoadResult{}, err
	}

	var result LoadResult
	known := make([]recognition.KnownFace, 0, len(files))
	dim := 0
	for _, name := range files {
		emb, err := s.extract(filepath.Join(s.dir, name))
		if err == nil && dim != 0 && len(emb) != dim {
			err = fmt.Errorf("%w: %d dimensions, expected %d", recognition.ErrInvalidEmbedding, len(emb), dim)
		}
		if err != nil {
			loadErr := &GalleryLoadError{File: name, Err: err}
			log.Printf("gallery: %v", loadErr)
			result.Skipped = append(result.Skipped, loadErr)
			continue
		}
		dim = len(emb)
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		known = append(known, recognition.KnownFace{Name: DisplayName(stem), Embedding: emb})
	}

	if err := s.matcher.Replace(known); err != nil {
		return result, fmt.Errorf("gallery: failed to swap index: %w", err)
	}
	result.Loaded = len(known)
	log.Printf("gallery: loaded %d known face(s), skipped %d", result.Loaded, len(result.Skipped))
	return result, nil
}

func (s *Store) extract(path string) ([]float32, error) {
	img, err := decodeReference(path)
	if err != nil {
		return nil, err
	}
	faces, err := s.detector.Detect(img)
	if err != nil {
		return nil, fmt.Errorf("face detection failed: %w", err)
	}
	for _, f := range faces {
		// first face with a usable embedding wins
		if len(f.Embedding) > 0 {
			return f.Embedding, nil
		}
	}
	return nil, ErrNoFace
}

// Add stores data as the reference image for name, replacing any earlier
// image with the same storage key, then rebuilds the index. It returns the
// display name.
func (s *Store) Add(name string, data io.Reader) (string, error) {
	key := StorageKey(name)
	if key == "" || strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	target := filepath.Join(s.dir, key+referenceExt)
	tmp, err := os.CreateTemp(s.dir, "."+key+"-*.upload")
	if err != nil {
		return "", fmt.Errorf("gallery: failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("gallery: failed to write reference image for %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("gallery: failed to write reference image for %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("gallery: failed to store reference image for %s: %w", key, err)
	}

	// one reference image per key
	for _, other := range s.filesForKey(key) {
		if other != key+referenceExt {
			if err := os.Remove(filepath.Join(s.dir, other)); err != nil && !os.IsNotExist(err) {
				log.Printf("gallery: failed to remove stale reference %s: %v", other, err)
			}
		}
	}
	log.Printf("gallery: stored reference image %s", target)

	if _, err := s.rebuild(); err != nil {
		return "", err
	}
	return DisplayName(key), nil
}

// Delete removes the reference image for name. It reports false without
// touching the gallery when no image exists for the name.
func (s *Store) Delete(name string) (bool, error) {
	key := StorageKey(name)
	if key == "" || strings.ContainsAny(key, `/\`) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	files := s.filesForKey(key)
	if len(files) == 0 {
		return false, nil
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(s.dir, f)); err != nil && !os.IsNotExist(err) {
			return false, fmt.Errorf("gallery: failed to delete %s: %w", f, err)
		}
	}
	log.Printf("gallery: deleted reference image(s) for %s", key)

	if _, err := s.rebuild(); err != nil {
		return true, err
	}
	return true, nil
}

// List returns the display names of all stored reference images in natural order.
func (s *Store) List() ([]string, error) {
	files, err := s.referenceFiles()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		key := StorageKey(strings.TrimSuffix(f, filepath.Ext(f)))
		if seen[key] {
			continue
		}
		seen[key] = true
		names = append(names, DisplayName(key))
	}
	return names, nil
}

// referenceFiles lists supported image files in natural order.
func (s *Store) referenceFiles() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("gallery: failed to read directory %s: %w", s.dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isSupportedImage(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	natsort.Sort(files)
	return files, nil
}

func (s *Store) filesForKey(key string) []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Printf("gallery: failed to read directory %s: %v", s.dir, err)
		return nil
	}
	var matches []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !isSupportedImage(name) {
			continue
		}
		if StorageKey(strings.TrimSuffix(name, filepath.Ext(name))) == key {
			matches = append(matches, name)
		}
	}
	return matches
}
