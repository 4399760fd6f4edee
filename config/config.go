package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Recognition RecognitionConfig `yaml:"recognition"`
	Capture     CaptureConfig     `yaml:"capture"`
	Push        PushConfig        `yaml:"push"`
	WorkerPool  WorkerPoolConfig  `yaml:"worker_pool"`
}

// ServerConfig holds the HTTP server configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RequestIPHeader string  `yaml:"request_ip_header"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration. The default
// driver is sqlite with a local file, matching a single-machine deployment;
// postgres is supported when the attendance table is shared.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// RecognitionConfig holds the identity-matching and marking parameters.
type RecognitionConfig struct {
	CooldownSeconds int           `yaml:"cooldown_seconds"`
	Cooldown        time.Duration `yaml:"-"` // Ignored by YAML parser
	MatchThreshold  float64       `yaml:"match_threshold"`
	MinTemplates    int           `yaml:"min_templates"`
	TemplateSizes   []int         `yaml:"template_sizes"`
}

// CaptureConfig holds the frame source and detector configuration.
type CaptureConfig struct {
	SourceDir       string         `yaml:"source_dir"`
	FrameIntervalMS int            `yaml:"frame_interval_ms"`
	FrameInterval   time.Duration  `yaml:"-"` // Ignored by YAML parser
	Detector        DetectorConfig `yaml:"detector"`
}

// DetectorConfig defines the external face-detection service.
type DetectorConfig struct {
	URL            string `yaml:"url"`
	Skip           bool   `yaml:"skip"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MinFaceSize    int    `yaml:"min_face_size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" {
		cfg.Database.DSN = "smart_attendance.db"
	}

	if cfg.Recognition.CooldownSeconds <= 0 {
		cfg.Recognition.CooldownSeconds = 10
	}
	cfg.Recognition.Cooldown = time.Duration(cfg.Recognition.CooldownSeconds) * time.Second

	if cfg.Recognition.MatchThreshold <= 0 || cfg.Recognition.MatchThreshold >= 1 {
		cfg.Recognition.MatchThreshold = 0.65
	}
	if cfg.Recognition.MinTemplates <= 0 {
		cfg.Recognition.MinTemplates = 6
	}
	if len(cfg.Recognition.TemplateSizes) == 0 {
		cfg.Recognition.TemplateSizes = []int{50, 75, 100}
	}

	if cfg.Capture.FrameIntervalMS <= 0 {
		cfg.Capture.FrameIntervalMS = 200
	}
	cfg.Capture.FrameInterval = time.Duration(cfg.Capture.FrameIntervalMS) * time.Millisecond

	if cfg.Capture.Detector.TimeoutSeconds <= 0 {
		cfg.Capture.Detector.TimeoutSeconds = 10
	}
	if cfg.Capture.Detector.MinFaceSize <= 0 {
		cfg.Capture.Detector.MinFaceSize = 50
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}

	return &cfg, nil
}
