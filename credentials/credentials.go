// Package credentials loads secrets from the environment or from local files.
package credentials

import (
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DriveEnv holds the Drive service account JSON itself.
	DriveEnv = "GDRIVE_CREDENTIALS"
	// DriveFile is read when DriveEnv is unset.
	DriveFile = "gdrive_credentials.json"

	// TokenEnv holds the Graph API access token.
	TokenEnv = "INSTAGRAM_ACCESS_TOKEN"
	// TokenFile is read when TokenEnv is unset.
	TokenFile = "instagram_token.txt"
)

// ErrMissing 环境变量和文件都没有提供凭证
var ErrMissing = errors.New("credential not found")

// Loader 凭证加载器
type Loader interface {
	Load() ([]byte, error)
}

// Source 优先从环境变量读取凭证，否则读取文件
type Source struct {
	Env  string
	Path string
}

// New 创建凭证来源，先读 env 再读 path
func New(env, path string) *Source {
	return &Source{Env: env, Path: path}
}

// Drive Google Drive 服务账号密钥
func Drive(path string) *Source {
	if path == "" {
		path = DriveFile
	}
	return New(DriveEnv, path)
}

// Token Graph API 访问令牌
func Token(path string) *Source {
	if path == "" {
		path = TokenFile
	}
	return New(TokenEnv, path)
}

// Load 优先读取环境变量，其次读取文件
func (s *Source) Load() ([]byte, error) {
	if s.Env != "" {
		if v := strings.TrimSpace(os.Getenv(s.Env)); v != "" {
			logrus.Debugf("loaded credential from $%s", s.Env)
			return []byte(v), nil
		}
	}

	if s.Path == "" {
		return nil, errors.Wrapf(ErrMissing, "$%s is empty", s.Env)
	}

	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(ErrMissing, "$%s is empty and %s does not exist", s.Env, s.Path)
		}
		return nil, errors.Wrapf(err, "failed to read %s", s.Path)
	}

	data = []byte(strings.TrimSpace(string(data)))
	if len(data) == 0 {
		return nil, errors.Wrapf(ErrMissing, "%s is empty", s.Path)
	}

	logrus.Debugf("loaded credential from %s", s.Path)
	return data, nil
}

// LoadString is Load for text secrets such as tokens.
func LoadString(l Loader) (string, error) {
	data, err := l.Load()
	if err != nil {
		return "", err
	}
	return string(data), nil
}
