// Package instagram publishes Reels through the Instagram Graph API using
// the resumable upload flow: create a container, upload the bytes, poll the
// container status, publish.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	DefaultGraphURL  = "https://graph.facebook.com/v21.0"
	DefaultUploadURL = "https://rupload.facebook.com/ig-api-upload/v21.0"

	defaultTimeout = 5 * time.Minute
)

// Graph API 返回的容器状态
const (
	StatusInProgress = "IN_PROGRESS"
	StatusFinished   = "FINISHED"
	StatusPublished  = "PUBLISHED"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
)

// SessionStatus 上传会话状态
type SessionStatus string

const (
	SessionPending SessionStatus = "pending"
	SessionReady   SessionStatus = "ready"
	SessionError   SessionStatus = "error"
)

// Config 发布客户端配置
type Config struct {
	AccessToken string
	UserID      string
	// MediaType is REELS unless configured otherwise.
	MediaType      string
	GraphURL       string
	UploadURL      string
	MaxUploadBytes int64
	HTTPClient     *http.Client
}

// Client 代表一个 Instagram 商业账号调用 Graph API
type Client struct {
	cfg  Config
	http *http.Client
}

// Account is the identity returned by Verify.
type Account struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name,omitempty"`
}

// NewClient 校验配置并填充默认值
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.AccessToken) == "" {
		return nil, errors.New("instagram access token is required")
	}
	if strings.TrimSpace(cfg.UserID) == "" {
		return nil, errors.New("instagram user id is required")
	}
	if cfg.MediaType == "" {
		cfg.MediaType = "REELS"
	}
	if cfg.GraphURL == "" {
		cfg.GraphURL = DefaultGraphURL
	}
	if cfg.UploadURL == "" {
		cfg.UploadURL = DefaultUploadURL
	}
	cfg.GraphURL = strings.TrimRight(cfg.GraphURL, "/")
	cfg.UploadURL = strings.TrimRight(cfg.UploadURL, "/")
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{cfg: cfg, http: httpClient}, nil
}

// CreateUploadSession 创建媒体容器并上传视频文件，返回容器 ID。
// mediaType 为空时使用配置中的类型。
func (c *Client) CreateUploadSession(ctx context.Context, path, caption, mediaType string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to stat video")
	}
	if c.cfg.MaxUploadBytes > 0 && fi.Size() > c.cfg.MaxUploadBytes {
		return "", errors.Wrapf(ErrTooLarge, "%.1f MB > %.1f MB",
			float64(fi.Size())/(1024*1024), float64(c.cfg.MaxUploadBytes)/(1024*1024))
	}
	if mediaType == "" {
		mediaType = c.cfg.MediaType
	}

	logrus.Infof("uploading %s (%.1f MB, caption %d chars)", path, float64(fi.Size())/(1024*1024), len([]rune(caption)))

	containerID, err := c.createContainer(ctx, caption, mediaType)
	if err != nil {
		return "", err
	}
	if err := c.upload(ctx, containerID, path, fi.Size()); err != nil {
		return "", err
	}
	return containerID, nil
}

// PollStatus 查询容器状态：处理中、可发布或失败
func (c *Client) PollStatus(ctx context.Context, sessionID string) (SessionStatus, error) {
	code, err := c.Status(ctx, sessionID)
	if err != nil {
		return "", err
	}
	switch code {
	case StatusFinished, StatusPublished:
		return SessionReady, nil
	case StatusError, StatusExpired:
		return SessionError, nil
	default:
		return SessionPending, nil
	}
}

// Publish 发布已就绪的容器，返回媒体 ID
func (c *Client) Publish(ctx context.Context, sessionID string) (string, error) {
	form := url.Values{"creation_id": {sessionID}}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.graph(c.cfg.UserID+"/media_publish", nil), form, nil, &resp); err != nil {
		return "", errors.Wrap(err, "failed to publish media")
	}
	if resp.ID == "" {
		return "", errors.New("publish response has no media id")
	}
	logrus.Infof("published media %s (container %s)", resp.ID, sessionID)
	return resp.ID, nil
}

// Verify 读取配置的账号信息以验证令牌
func (c *Client) Verify(ctx context.Context) (*Account, error) {
	q := url.Values{"fields": {"id,username,name"}}
	var acc Account
	if err := c.do(ctx, http.MethodGet, c.graph(c.cfg.UserID, q), nil, nil, &acc); err != nil {
		return nil, errors.Wrap(err, "failed to verify instagram account")
	}
	return &acc, nil
}

// RequiredPermissions are the token scopes publishing needs.
var RequiredPermissions = []string{"instagram_basic", "instagram_content_publish", "pages_read_engagement", "pages_show_list"}

// Me returns the token owner.
func (c *Client) Me(ctx context.Context) (*Account, error) {
	var acc Account
	if err := c.do(ctx, http.MethodGet, c.graph("me", url.Values{"fields": {"id,name"}}), nil, nil, &acc); err != nil {
		return nil, errors.Wrap(err, "failed to read token owner")
	}
	return &acc, nil
}

// MissingPermissions 返回令牌缺少的权限
func (c *Client) MissingPermissions(ctx context.Context) ([]string, error) {
	var resp struct {
		Data []struct {
			Permission string `json:"permission"`
			Status     string `json:"status"`
		} `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, c.graph("me/permissions", nil), nil, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to read token permissions")
	}

	granted := make(map[string]bool, len(resp.Data))
	for _, p := range resp.Data {
		if p.Status == "granted" {
			granted[p.Permission] = true
		}
	}
	var missing []string
	for _, p := range RequiredPermissions {
		if !granted[p] {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// Status returns the processing status of a media container.
func (c *Client) Status(ctx context.Context, containerID string) (string, error) {
	q := url.Values{"fields": {"status_code,status"}}
	var resp struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, c.graph(containerID, q), nil, nil, &resp); err != nil {
		return "", err
	}
	if resp.StatusCode == StatusError && resp.Status != "" {
		logrus.Warnf("container %s error: %s", containerID, resp.Status)
	}
	return resp.StatusCode, nil
}

func (c *Client) createContainer(ctx context.Context, caption, mediaType string) (string, error) {
	form := url.Values{
		"media_type":  {mediaType},
		"upload_type": {"resumable"},
		"caption":     {caption},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, c.graph(c.cfg.UserID+"/media", nil), form, nil, &resp); err != nil {
		return "", errors.Wrap(err, "failed to create media container")
	}
	if resp.ID == "" {
		return "", errors.New("media container response has no id")
	}
	logrus.Debugf("created media container %s", resp.ID)
	return resp.ID, nil
}

func (c *Client) upload(ctx context.Context, containerID, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open video")
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.UploadURL+"/"+containerID, f)
	if err != nil {
		return errors.Wrap(err, "failed to build upload request")
	}
	req.ContentLength = size
	req.Header.Set("Authorization", "OAuth "+c.cfg.AccessToken)
	req.Header.Set("offset", "0")
	req.Header.Set("file_size", strconv.FormatInt(size, 10))

	var resp struct {
		Success bool `json:"success"`
	}
	if err := c.send(req, &resp); err != nil {
		return errors.Wrap(err, "failed to upload video")
	}
	if !resp.Success {
		return errors.New("upload was not acknowledged")
	}
	return nil
}

func (c *Client) graph(path string, q url.Values) string {
	if q == nil {
		q = url.Values{}
	}
	q.Set("access_token", c.cfg.AccessToken)
	return fmt.Sprintf("%s/%s?%s", c.cfg.GraphURL, strings.TrimLeft(path, "/"), q.Encode())
}

func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values, body io.Reader, out any) error {
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return errors.Wrap(err, "failed to build request")
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	return c.send(req, out)
}

func (c *Client) send(req *http.Request, out any) error {
	req.Header.Set("User-Agent", "reels-autopost/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(err, "request failed")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return errors.Wrap(err, "failed to read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(resp.StatusCode, data)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "failed to decode response")
	}
	return nil
}

func decodeError(status int, data []byte) error {
	var env struct {
		Error *APIError `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.Error != nil {
		env.Error.StatusCode = status
		return env.Error
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return &APIError{StatusCode: status, Message: msg}
}
