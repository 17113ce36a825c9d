package configs

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// loadEnv 用环境变量覆盖配置。
// 沿用旧版变量名以兼容已有的 .env 文件，其余配置使用 REELS_* 前缀。
func (c *Config) loadEnv() error {
	e := envReader{}

	e.str(&c.DriveFolderID, "GDRIVE_FOLDER_ID")
	e.str(&c.DriveCredentialsFile, "REELS_DRIVE_CREDENTIALS_FILE")
	e.str(&c.InstagramUserID, "INSTAGRAM_USER_ID")
	e.str(&c.InstagramTokenFile, "REELS_INSTAGRAM_TOKEN_FILE")
	e.str(&c.MediaType, "REELS_MEDIA_TYPE")
	e.str(&c.GraphURL, "REELS_GRAPH_URL")
	e.str(&c.UploadURL, "REELS_UPLOAD_URL")

	e.float(&c.MaxSegmentSeconds, "VIDEO_SEGMENT_MAX_DURATION")
	e.float(&c.SpeedFactor, "SPEED_FACTOR")
	e.float(&c.MaxSourceSeconds, "MAX_ORIGINAL_VIDEO_LENGTH")
	e.float(&c.MaxUploadMB, "INSTAGRAM_MAX_VIDEO_SIZE_MB")

	e.str(&c.OrdinalMarker, "REELS_ORDINAL_MARKER")
	e.boolean(&c.WrapCatalog, "REELS_WRAP_CATALOG")

	e.boolean(&c.PostDaily, "POST_DAILY")
	e.str(&c.DailyTimezone, "REELS_DAILY_TIMEZONE")
	e.integer(&c.MaxConsecutiveErrors, "MAX_ERRORS_BEFORE_STOP")
	e.integer(&c.PublishAttempts, "MAX_RETRIES")
	e.duration(&c.PublishBackoff, "REELS_PUBLISH_BACKOFF")
	e.duration(&c.DelayBetweenPosts, "DELAY_BETWEEN_POSTS")
	e.boolean(&c.SkipFailedSegments, "SKIP_PROBLEMATIC_VIDEOS")
	e.duration(&c.StatusPollInterval, "REELS_STATUS_POLL_INTERVAL")
	e.integer(&c.StatusPollAttempts, "REELS_STATUS_POLL_ATTEMPTS")

	e.str(&c.CaptionTemplate, "REELS_CAPTION_TEMPLATE")
	if v, ok := lookup("REELS_HASHTAGS"); ok {
		c.Hashtags = strings.Fields(strings.ReplaceAll(v, ",", " "))
	}

	e.str(&c.StatePath, "REELS_STATE_PATH")
	e.integer(&c.HistoryLimit, "REELS_HISTORY_LIMIT")
	e.str(&c.WorkDir, "REELS_WORK_DIR")
	e.str(&c.FFmpegPath, "REELS_FFMPEG_PATH")
	e.str(&c.FFprobePath, "REELS_FFPROBE_PATH")

	e.str(&c.LogLevel, "REELS_LOG_LEVEL")
	e.str(&c.LogFormat, "REELS_LOG_FORMAT")
	e.str(&c.LogFile, "LOG_FILE")
	e.str(&c.WebhookURL, "REELS_WEBHOOK_URL")
	e.str(&c.MetricsTextfile, "REELS_METRICS_TEXTFILE")
	e.str(&c.Port, "REELS_PORT")

	return e.err
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(v), true
}

// envReader keeps the first parse error.
type envReader struct {
	err error
}

func (e *envReader) fail(key, value, want string) {
	if e.err == nil {
		e.err = &ConfigError{Field: key, Reason: "expected " + want + ", got " + strconv.Quote(value)}
	}
}

func (e *envReader) str(dst *string, key string) {
	if v, ok := lookup(key); ok {
		*dst = v
	}
}

func (e *envReader) float(dst *float64, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(key, v, "a number")
		return
	}
	*dst = f
}

func (e *envReader) integer(dst *int, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(key, v, "an integer")
		return
	}
	*dst = n
}

func (e *envReader) boolean(dst *bool, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(key, v, "true or false")
		return
	}
	*dst = b
}

// duration accepts Go durations ("90s") or bare seconds ("60").
func (e *envReader) duration(dst *time.Duration, key string) {
	v, ok := lookup(key)
	if !ok {
		return
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil {
		*dst = time.Duration(secs * float64(time.Second))
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(key, v, "a duration")
		return
	}
	*dst = d
}
