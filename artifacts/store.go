package artifacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/camden-git/vidfaces/pipeline"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// AssetType names a class of artifact stored under its own subdirectory.
type AssetType string

const (
	AssetTypeTemp   AssetType = "temp"
	AssetTypeFace   AssetType = "face"
	AssetTypeReport AssetType = "report"
)

const (
	cropExt         = ".jpg"
	reportPrefix    = "results_"
	reportExt       = ".json"
	tempPrefix      = "temp_"
	cropJPEGQuality = 90
)

// DefaultSubDirs are used for asset types missing from the NewStore map.
var DefaultSubDirs = map[AssetType]string{
	AssetTypeTemp:   "temp",
	AssetTypeFace:   "faces",
	AssetTypeReport: "reports",
}

var (
	ErrNotFound    = errors.New("artifacts: not found")
	ErrInvalidPath = errors.New("artifacts: invalid path")
)

var allowedVideoExts = map[string]bool{
	".mp4": true,
	".mov": true,
	".avi": true,
}

// IsAllowedVideo reports whether filename has an accepted video extension.
func IsAllowedVideo(filename string) bool {
	return allowedVideoExts[strings.ToLower(filepath.Ext(filename))]
}

// Store owns the temp, face crop and report directories under one base path.
// Every generated name embeds a random UUID.
type Store struct {
	basePath     string
	resolvedDirs map[AssetType]string

	reportLocksMu sync.Mutex
	reportLocks   map[string]*sync.Mutex
}

// NewStore resolves and creates one directory per asset type below basePath.
func NewStore(basePath string, subDirs map[AssetType]string) (*Store, error) {
	absBasePath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("invalid base storage path '%s': %w", basePath, err)
	}
	if err := os.MkdirAll(absBasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory '%s': %w", absBasePath, err)
	}

	resolved := make(map[AssetType]string, 3)
	for _, t := range []AssetType{AssetTypeTemp, AssetTypeFace, AssetTypeReport} {
		subDir, ok := subDirs[t]
		if !ok || subDir == "" {
			subDir = DefaultSubDirs[t]
		}
		fullPath := filepath.Clean(filepath.Join(absBasePath, subDir))
		if !within(absBasePath, fullPath) || fullPath == absBasePath {
			return nil, fmt.Errorf("invalid subdirectory configuration: '%s' resolves outside base path '%s'", subDir, absBasePath)
		}
		if err := os.MkdirAll(fullPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to ensure directory '%s': %w", fullPath, err)
		}
		resolved[t] = fullPath
	}

	log.Printf("artifacts: initialized store at %s", absBasePath)
	return &Store{
		basePath:     absBasePath,
		resolvedDirs: resolved,
		reportLocks:  make(map[string]*sync.Mutex),
	}, nil
}

// BasePath is the absolute data directory.
func (s *Store) BasePath() string { return s.basePath }

// Dir returns the absolute directory for an asset type.
func (s *Store) Dir(t AssetType) string { return s.resolvedDirs[t] }

// NewTempPath returns an unused path in the temp directory with the given extension.
func (s *Store) NewTempPath(ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(s.resolvedDirs[AssetTypeTemp], tempPrefix+uuid.NewString()+strings.ToLower(ext))
}

// SaveTemp copies data into a new temp file and returns its path. The caller
// owns the file and must release it with DeleteTemp.
func (s *Store) SaveTemp(ext string, data io.Reader) (string, error) {
	path := s.NewTempPath(ext)
	out, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create temp file '%s': %w", path, err)
	}
	if _, err := io.Copy(out, data); err != nil {
		out.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write temp file '%s': %w", path, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close temp file '%s': %w", path, err)
	}
	return path, nil
}

// DeleteTemp removes a temp file. Missing files are not an error.
func (s *Store) DeleteTemp(path string) error {
	clean := filepath.Clean(path)
	if !within(s.resolvedDirs[AssetTypeTemp], clean) {
		return fmt.Errorf("%w: %s is not a temp file", ErrInvalidPath, path)
	}
	if err := os.Remove(clean); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete temp file '%s': %w", path, err)
	}
	return nil
}

// PersistCrop encodes img as JPEG under the face id and returns its path
// relative to the base directory, e.g. "faces/<id>.jpg".
func (s *Store) PersistCrop(faceID string, img image.Image) (string, error) {
	if !validName(faceID) {
		return "", fmt.Errorf("%w: face id %q", ErrInvalidPath, faceID)
	}
	fullPath := filepath.Join(s.resolvedDirs[AssetTypeFace], faceID+cropExt)
	err := writeAtomic(fullPath, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.JPEG, imaging.JPEGQuality(cropJPEGQuality))
	})
	if err != nil {
		return "", fmt.Errorf("failed to persist crop %s: %w", faceID, err)
	}
	return s.relative(fullPath)
}

// DeleteCrop removes the crop for a face id. Missing crops are not an error.
func (s *Store) DeleteCrop(faceID string) error {
	if !validName(faceID) {
		return fmt.Errorf("%w: face id %q", ErrInvalidPath, faceID)
	}
	fullPath := filepath.Join(s.resolvedDirs[AssetTypeFace], faceID+cropExt)
	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete crop %s: %w", faceID, err)
	}
	return nil
}

// CropPath resolves a face id, with or without its .jpg suffix, to the
// absolute path of an existing crop.
func (s *Store) CropPath(id string) (string, error) {
	id = strings.TrimSuffix(id, cropExt)
	if !validName(id) {
		return "", fmt.Errorf("%w: face id %q", ErrInvalidPath, id)
	}
	return existing(filepath.Join(s.resolvedDirs[AssetTypeFace], id+cropExt))
}

// Resolve maps a crop reference relative to the base directory, such as
// "faces/<id>.jpg", to an existing file. Only files in the faces directory
// resolve; temp uploads, reports and anything else under the base directory
// are refused.
func (s *Store) Resolve(relativePath string) (string, error) {
	if relativePath == "" || filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relativePath)
	}
	faceDir := s.resolvedDirs[AssetTypeFace]
	fullPath := filepath.Clean(filepath.Join(s.basePath, filepath.FromSlash(relativePath)))
	if !within(faceDir, fullPath) || fullPath == faceDir {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, relativePath)
	}
	return existing(fullPath)
}

// PersistReport writes a new report and returns its name, e.g. "results_<uuid>.json".
func (s *Store) PersistReport(report *pipeline.Report) (string, error) {
	name := reportPrefix + uuid.NewString() + reportExt
	if err := s.writeReport(name, report); err != nil {
		return "", err
	}
	log.Printf("artifacts: saved report %s", name)
	return name, nil
}

// LoadReport reads a report by name.
func (s *Store) LoadReport(name string) (*pipeline.Report, error) {
	path, err := s.reportPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: report %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("failed to read report %s: %w", name, err)
	}
	report := pipeline.NewReport(pipeline.VideoInfo{})
	if err := json.Unmarshal(data, report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s: %w", name, err)
	}
	return report, nil
}

// UpdateReport loads a report, applies fn and writes it back. Updates to the
// same report are serialized and the file is replaced atomically, so readers
// see either the old or the new document.
func (s *Store) UpdateReport(name string, fn func(*pipeline.Report) error) (*pipeline.Report, error) {
	lock := s.reportLock(name)
	lock.Lock()
	defer lock.Unlock()

	report, err := s.LoadReport(name)
	if err != nil {
		return nil, err
	}
	if err := fn(report); err != nil {
		return nil, err
	}
	if err := s.writeReport(name, report); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *Store) writeReport(name string, report *pipeline.Report) error {
	path, err := s.reportPath(name)
	if err != nil {
		return err
	}
	err = writeAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	})
	if err != nil {
		return fmt.Errorf("failed to write report %s: %w", name, err)
	}
	return nil
}

func (s *Store) reportPath(name string) (string, error) {
	if !validName(name) || !strings.HasSuffix(name, reportExt) {
		return "", fmt.Errorf("%w: report name %q", ErrInvalidPath, name)
	}
	return filepath.Join(s.resolvedDirs[AssetTypeReport], name), nil
}

func (s *Store) reportLock(name string) *sync.Mutex {
	s.reportLocksMu.Lock()
	defer s.reportLocksMu.Unlock()
	l, ok := s.reportLocks[name]
	if !ok {
		l = &sync.Mutex{}
		s.reportLocks[name] = l
	}
	return l
}

func (s *Store) relative(fullPath string) (string, error) {
	rel, err := filepath.Rel(s.basePath, fullPath)
	if err != nil {
		return "", fmt.Errorf("internal error calculating relative path: %w", err)
	}
	return filepath.ToSlash(rel), nil
}

// writeAtomic writes through a sibling temp file renamed over path.
func writeAtomic(path string, write func(io.Writer) error) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*")
	if err != nil {
		return err
	}
	if err := write(tmp); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func existing(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
		}
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrNotFound, filepath.Base(path))
	}
	return path, nil
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// validName accepts a single path element without traversal.
func validName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		!strings.ContainsAny(name, `/\`) && !strings.HasPrefix(name, ".")
}
