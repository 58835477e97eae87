package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ScanConfig holds the settings of the scan workflow and verification client.
type ScanConfig struct {
	// Origin is the base URL of the backend that serves the kiosk page and the scan API.
	Origin          string
	ScanPath        string
	CSRFToken       string
	Door            string
	ResumeDelay     time.Duration
	DisplayDuration time.Duration
	// VerifyTimeout bounds a single verification call. Zero disables the bound.
	VerifyTimeout time.Duration
}

// CameraConfig selects the capture devices and their parameters.
type CameraConfig struct {
	DeviceGlob string
	FPS        int
	BoxSize    int
}

// AudioConfig configures the result cue player. An empty Command disables audio.
type AudioConfig struct {
	Command    string
	SuccessCue string
	ErrorCue   string
}

// CacheConfig configures the offline asset cache.
type CacheConfig struct {
	// ManifestPath points to a YAML manifest. Empty uses the built-in manifest.
	ManifestPath string
	// Backend is "memory" or "minio".
	Backend string
}

// MinIOConfig holds object storage settings for MinIO.
type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	// Prefix namespaces this kiosk's objects inside a shared bucket.
	Prefix string
	UseSSL bool
}

// AppConfig is the centralized configuration struct for the kiosk.
// It is populated from environment variables. Sensitive values are not hardcoded.
type AppConfig struct {
	AppHost        string
	Port           string
	TimeZone       string
	LogLevel       string
	LogFormat      string
	MetricsEnabled bool
	Scan           ScanConfig
	Camera         CameraConfig
	Audio          AudioConfig
	Cache          CacheConfig
	MinIO          MinIOConfig
}

// Load reads configuration from environment variables.
// A .env file can be auto-loaded by importing: _ "github.com/joho/godotenv/autoload"
// This function does not require a .env file; real environment variables take precedence.
func Load() *AppConfig {
	return &AppConfig{
		AppHost:        getEnv("APP_HOST", "localhost:8080"),
		Port:           getEnv("PORT", "8080"),
		TimeZone:       getEnv("TZ_NAME", "UTC"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
		MetricsEnabled: getEnvBool("METRICS_ENABLED", true),
		Scan: ScanConfig{
			Origin:          strings.TrimRight(getEnv("KIOSK_ORIGIN", "http://localhost:5000"), "/"),
			ScanPath:        getEnv("KIOSK_SCAN_PATH", "/api/scan"),
			CSRFToken:       getEnv("KIOSK_CSRF_TOKEN", ""),
			Door:            getEnv("KIOSK_DOOR", ""),
			ResumeDelay:     getEnvDuration("KIOSK_RESUME_DELAY", 2*time.Second),
			DisplayDuration: getEnvDuration("KIOSK_DISPLAY_DURATION", 5*time.Second),
			VerifyTimeout:   getEnvDuration("KIOSK_VERIFY_TIMEOUT", 0),
		},
		Camera: CameraConfig{
			DeviceGlob: getEnv("CAMERA_DEVICE_GLOB", "/dev/serial/by-id/*"),
			FPS:        getEnvInt("CAMERA_FPS", 10),
			BoxSize:    getEnvInt("CAMERA_BOX_SIZE", 250),
		},
		Audio: AudioConfig{
			Command:    getEnv("AUDIO_COMMAND", ""),
			SuccessCue: getEnv("AUDIO_SUCCESS_CUE", "static/audio/success.mp3"),
			ErrorCue:   getEnv("AUDIO_ERROR_CUE", "static/audio/error.mp3"),
		},
		Cache: CacheConfig{
			ManifestPath: getEnv("CACHE_MANIFEST", ""),
			Backend:      getEnv("CACHE_BACKEND", "memory"),
		},
		MinIO: MinIOConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", ""),
			Prefix:    getEnv("MINIO_PREFIX", "exitscan"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
	}
}

// Location resolves TimeZone, falling back to UTC when it is unknown.
func (c *AppConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		i, err := strconv.Atoi(v)
		if err == nil {
			return i
		}
	}
	return def
}

// getEnvDuration accepts Go duration strings ("2s", "1500ms") or a bare number
// of milliseconds.
func getEnvDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil && d >= 0 {
		return d
	}
	if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return def
}
