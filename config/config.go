package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/camden-git/vidfaces/artifacts"
	"github.com/camden-git/vidfaces/pipeline"
	"github.com/camden-git/vidfaces/recognition"
)

const (
	defaultVideoQueueSize  = 16
	defaultNumVideoWorkers = 2
	defaultMaxUploadMB     = 512
	defaultRequestTimeout  = 60 * time.Second
)

const (
	DetectorYuNet = "yunet"
	DetectorSSD   = "ssd"
)

var defaultCORSOrigins = []string{"http://localhost:9000", "http://localhost:5173"}

type Config struct {
	Port string

	// DataDir holds temp uploads, face crops and reports
	DataDir       string
	TempSubDir    string
	FacesSubDir   string
	ReportsSubDir string

	KnownFacesDir string
	DatabasePath  string

	// pipeline tuning
	FrameStride      int
	DownsampleFactor float64
	MatchTolerance   float64

	// FaceDetector is "yunet" or "ssd"
	FaceDetector         string
	YuNetModelPath       string
	SSDConfigPath        string
	SSDModelPath         string
	RecognitionModelPath string
	RecognitionModelName string
	ConfidenceThreshold  float64

	// worker settings
	VideoQueueSize  int
	NumVideoWorkers int

	CORSAllowedOrigins []string
	MaxUploadBytes     int64
	RequestTimeout     time.Duration
}

// ArtifactSubDirs maps the configured subdirectories onto asset types.
func (c Config) ArtifactSubDirs() map[artifacts.AssetType]string {
	return map[artifacts.AssetType]string{
		artifacts.AssetTypeTemp:   c.TempSubDir,
		artifacts.AssetTypeFace:   c.FacesSubDir,
		artifacts.AssetTypeReport: c.ReportsSubDir,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(envVar string, defaultVal int) int {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil || val <= 0 {
		log.Printf("Warning: Invalid %s '%s'. Using default %d. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

// getEnvFloatOrDefault accepts values in (0, upper].
func getEnvFloatOrDefault(envVar string, defaultVal, upper float64) float64 {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseFloat(valStr, 64)
	if err != nil || val <= 0 || val > upper {
		log.Printf("Warning: Invalid %s '%s'. Using default %g. Error: %v", envVar, valStr, defaultVal, err)
		return defaultVal
	}
	return val
}

func getEnvListOrDefault(envVar string, defaultVal []string) []string {
	valStr := os.Getenv(envVar)
	if valStr == "" {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(valStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func absPath(envVar, defaultValue string) (string, error) {
	p := getEnvOrDefault(envVar, defaultValue)
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for %s '%s': %w", envVar, p, err)
	}
	return abs, nil
}

func LoadConfig() (Config, error) {
	dataDir, err := absPath("DATA_DIR", filepath.Join(".", "data"))
	if err != nil {
		return Config{}, err
	}
	knownFacesDir, err := absPath("KNOWN_FACES_DIR", filepath.Join(".", "known_faces"))
	if err != nil {
		return Config{}, err
	}
	dbPath := getEnvOrDefault("DATABASE_PATH", filepath.Join(dataDir, "vidfaces.db"))

	detector := strings.ToLower(getEnvOrDefault("FACE_DETECTOR", DetectorYuNet))
	if detector != DetectorYuNet && detector != DetectorSSD {
		return Config{}, fmt.Errorf("unsupported FACE_DETECTOR '%s' (want %s or %s)", detector, DetectorYuNet, DetectorSSD)
	}

	cfg := Config{
		Port:                 getEnvOrDefault("PORT", "8080"),
		DataDir:              dataDir,
		TempSubDir:           getEnvOrDefault("TEMP_SUBDIR", artifacts.DefaultSubDirs[artifacts.AssetTypeTemp]),
		FacesSubDir:          getEnvOrDefault("FACES_SUBDIR", artifacts.DefaultSubDirs[artifacts.AssetTypeFace]),
		ReportsSubDir:        getEnvOrDefault("REPORTS_SUBDIR", artifacts.DefaultSubDirs[artifacts.AssetTypeReport]),
		KnownFacesDir:        knownFacesDir,
		DatabasePath:         dbPath,
		FrameStride:          getEnvIntOrDefault("FRAME_STRIDE", pipeline.DefaultStride),
		DownsampleFactor:     getEnvFloatOrDefault("DOWNSAMPLE_FACTOR", pipeline.DefaultDownsampleFactor, 1),
		MatchTolerance:       getEnvFloatOrDefault("MATCH_TOLERANCE", recognition.DefaultTolerance, 4),
		FaceDetector:         detector,
		YuNetModelPath:       getEnvOrDefault("FACE_YUNET_MODEL_PATH", "./models/face_detection_yunet_2023mar.onnx"),
		SSDConfigPath:        getEnvOrDefault("FACE_DNN_CONFIG_PATH", "./models/deploy.prototxt.txt"),
		SSDModelPath:         getEnvOrDefault("FACE_DNN_MODEL_PATH", "./models/res10_300x300_ssd_iter_140000_fp16.caffemodel"),
		RecognitionModelPath: getEnvOrDefault("FACE_RECOGNITION_MODEL_PATH", "./models/face_recognition_sface_2021dec.onnx"),
		RecognitionModelName: strings.ToLower(getEnvOrDefault("FACE_RECOGNITION_MODEL_NAME", "sface")),
		ConfidenceThreshold:  getEnvFloatOrDefault("FACE_CONFIDENCE_THRESHOLD", 0.6, 1),
		VideoQueueSize:       getEnvIntOrDefault("VIDEO_QUEUE_SIZE", defaultVideoQueueSize),
		NumVideoWorkers:      getEnvIntOrDefault("NUM_VIDEO_WORKERS", defaultNumVideoWorkers),
		CORSAllowedOrigins:   getEnvListOrDefault("CORS_ALLOWED_ORIGINS", defaultCORSOrigins),
		MaxUploadBytes:       int64(getEnvIntOrDefault("MAX_UPLOAD_MB", defaultMaxUploadMB)) << 20,
		RequestTimeout:       time.Duration(getEnvIntOrDefault("REQUEST_TIMEOUT_SECONDS", int(defaultRequestTimeout.Seconds()))) * time.Second,
	}

	return cfg, nil
}
