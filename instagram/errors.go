package instagram

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

var (
	// ErrTooLarge is returned before any network call when the file exceeds
	// the configured upload limit.
	ErrTooLarge = errors.New("video exceeds upload size limit")
	// ErrProcessingFailed means the container finished in ERROR or EXPIRED.
	ErrProcessingFailed = errors.New("media container processing failed")
	// ErrProcessingTimeout means the container was still in progress after
	// every status poll.
	ErrProcessingTimeout = errors.New("media container not ready in time")
)

// transientCodes are Graph error codes documented as temporary
// (unknown, service, throttling).
var transientCodes = map[int]bool{1: true, 2: true, 4: true, 17: true, 32: true, 341: true, 613: true}

// APIError Graph API 返回的错误
type APIError struct {
	StatusCode   int    `json:"-"`
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	Subcode      int    `json:"error_subcode"`
	IsTransient  bool   `json:"is_transient"`
	FBTraceID    string `json:"fbtrace_id"`
	UserTitle    string `json:"error_user_title"`
	UserMessages string `json:"error_user_msg"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph api error %d (code %d, %s): %s", e.StatusCode, e.Code, e.Type, e.Message)
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	if e.IsTransient || transientCodes[e.Code] {
		return true
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable 判断错误是否值得重试发布。
// 网络错误和临时性 API 错误可以重试，参数错误不重试。
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrTooLarge) || errors.Is(err, ErrProcessingFailed) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
