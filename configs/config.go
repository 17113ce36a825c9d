package configs

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultFile 未指定配置文件时，若存在则读取该文件
const DefaultFile = "reels-autopost.yaml"

// ConfigError 配置错误，进程应在任何尝试之前退出
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.Field, e.Reason)
}

// Config 全部配置项。按值传递，Load 之后不再修改
type Config struct {
	// Google Drive
	DriveFolderID        string `yaml:"drive_folder_id"`
	DriveCredentialsFile string `yaml:"drive_credentials_file"`

	// Instagram Graph API
	InstagramUserID    string `yaml:"instagram_user_id"`
	InstagramTokenFile string `yaml:"instagram_token_file"`
	MediaType          string `yaml:"media_type"`
	GraphURL           string `yaml:"graph_url"`
	UploadURL          string `yaml:"upload_url"`

	// 切分与加速
	MaxSegmentSeconds float64 `yaml:"max_segment_seconds"`
	SpeedFactor       float64 `yaml:"speed_factor"`
	MaxSourceSeconds  float64 `yaml:"max_source_seconds"`
	MaxUploadMB       float64 `yaml:"max_upload_mb"`

	// Catalog
	OrdinalMarker string `yaml:"ordinal_marker"`
	WrapCatalog   bool   `yaml:"wrap_catalog"`

	// Orchestration
	PostDaily            bool          `yaml:"post_daily"`
	DailyTimezone        string        `yaml:"daily_timezone"`
	MaxConsecutiveErrors int           `yaml:"max_consecutive_errors"`
	PublishAttempts      int           `yaml:"publish_attempts"`
	PublishBackoff       time.Duration `yaml:"publish_backoff"`
	DelayBetweenPosts    time.Duration `yaml:"delay_between_posts"`
	SkipFailedSegments   bool          `yaml:"skip_failed_segments"`
	StatusPollInterval   time.Duration `yaml:"status_poll_interval"`
	StatusPollAttempts   int           `yaml:"status_poll_attempts"`

	// Captions
	CaptionTemplate string   `yaml:"caption_template"`
	Hashtags        []string `yaml:"hashtags"`

	// Storage
	StatePath    string `yaml:"state_path"`
	HistoryLimit int    `yaml:"history_limit"`
	WorkDir      string `yaml:"work_dir"`

	// External tools
	FFmpegPath  string `yaml:"ffmpeg_path"`
	FFprobePath string `yaml:"ffprobe_path"`

	// Logging
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LogFile   string `yaml:"log_file"`

	// Notifications and metrics
	WebhookURL      string `yaml:"webhook_url"`
	MetricsTextfile string `yaml:"metrics_textfile"`

	// serve
	Port string `yaml:"port"`
}

// Default 返回内置默认配置
func Default() Config {
	return Config{
		DriveCredentialsFile: "gdrive_credentials.json",
		InstagramTokenFile:   "instagram_token.txt",
		MediaType:            "REELS",
		GraphURL:             "https://graph.facebook.com/v21.0",
		UploadURL:            "https://rupload.facebook.com/ig-api-upload/v21.0",

		MaxSegmentSeconds: 170,
		SpeedFactor:       1.25,
		MaxSourceSeconds:  3600,
		MaxUploadMB:       100,

		OrdinalMarker: "part",
		WrapCatalog:   true,

		PostDaily:            true,
		DailyTimezone:        "UTC",
		MaxConsecutiveErrors: 5,
		PublishAttempts:      3,
		PublishBackoff:       10 * time.Second,
		DelayBetweenPosts:    60 * time.Second,
		SkipFailedSegments:   true,
		StatusPollInterval:   10 * time.Second,
		StatusPollAttempts:   30,

		StatePath:    "state/posting_state.json",
		HistoryLimit: 50,

		FFmpegPath:  "ffmpeg",
		FFprobePath: "ffprobe",

		LogLevel:  "info",
		LogFormat: "text",
		LogFile:   "instagram_poster.log",

		Port: ":18060",
	}
}

// Load 加载配置，优先级从低到高：默认值、YAML 文件、.env、环境变量。
// path 为空时读取 DefaultFile（如果存在）。
func Load(path string) (Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return Config{}, err
	}

	if err := godotenv.Load(); err != nil && !os.IsNotExist(errors.Cause(err)) {
		logrus.Warnf("failed to read .env: %v", err)
	}

	if err := cfg.loadEnv(); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return nil
		}
		return &ConfigError{Field: "config", Reason: err.Error()}
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return &ConfigError{Field: "config", Reason: fmt.Sprintf("parse %s: %v", path, err)}
	}
	logrus.Debugf("loaded config file %s", path)
	return nil
}

// Validate 校验取值范围和枚举值
func (c Config) Validate() error {
	switch {
	case !(c.MaxSegmentSeconds > 0):
		return &ConfigError{Field: "max_segment_seconds", Reason: "must be positive"}
	case !(c.SpeedFactor > 0):
		return &ConfigError{Field: "speed_factor", Reason: "must be positive"}
	case c.MaxSourceSeconds < 0:
		return &ConfigError{Field: "max_source_seconds", Reason: "must not be negative"}
	case c.MaxUploadMB < 0:
		return &ConfigError{Field: "max_upload_mb", Reason: "must not be negative"}
	case c.MaxConsecutiveErrors < 0:
		return &ConfigError{Field: "max_consecutive_errors", Reason: "must not be negative"}
	case c.PublishAttempts < 1:
		return &ConfigError{Field: "publish_attempts", Reason: "must be at least 1"}
	case c.PublishBackoff < 0:
		return &ConfigError{Field: "publish_backoff", Reason: "must not be negative"}
	case c.DelayBetweenPosts < 0:
		return &ConfigError{Field: "delay_between_posts", Reason: "must not be negative"}
	case c.StatusPollInterval <= 0:
		return &ConfigError{Field: "status_poll_interval", Reason: "must be positive"}
	case c.StatusPollAttempts < 1:
		return &ConfigError{Field: "status_poll_attempts", Reason: "must be at least 1"}
	case c.HistoryLimit < 1:
		return &ConfigError{Field: "history_limit", Reason: "must be at least 1"}
	case strings.TrimSpace(c.StatePath) == "":
		return &ConfigError{Field: "state_path", Reason: "is required"}
	}

	if _, err := time.LoadLocation(c.DailyTimezone); err != nil {
		return &ConfigError{Field: "daily_timezone", Reason: err.Error()}
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return &ConfigError{Field: "log_level", Reason: err.Error()}
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return &ConfigError{Field: "log_format", Reason: "must be text or json"}
	}
	return nil
}

// RequireRemote 检查访问 Drive 和 Instagram 所需的 ID
func (c Config) RequireRemote() error {
	if strings.TrimSpace(c.DriveFolderID) == "" {
		return &ConfigError{Field: "drive_folder_id", Reason: "is required (GDRIVE_FOLDER_ID)"}
	}
	if strings.TrimSpace(c.InstagramUserID) == "" {
		return &ConfigError{Field: "instagram_user_id", Reason: "is required (INSTAGRAM_USER_ID)"}
	}
	return nil
}

// Location 每日限制使用的时区
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DailyTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// MaxUploadBytes converts MaxUploadMB, 0 meaning no limit.
func (c Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB * 1024 * 1024)
}
