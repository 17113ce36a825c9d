package downloader

import (
	"io"
	"os"
	"path/filepath"

	"github.com/h2non/filetype"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// headerSize is how many leading bytes filetype needs to identify a container.
const headerSize = 262

// ErrNotVideo 下载的内容不是视频
var ErrNotVideo = errors.New("downloaded file is not a valid video")

// ProgressFunc 下载进度回调，total 未知时为 0
type ProgressFunc func(written, total int64)

// SaveVideo 将视频流写入 dest，写完后校验文件头
func SaveVideo(r io.Reader, dest string, total int64, progress ProgressFunc) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return 0, errors.Wrap(err, "failed to create download dir")
	}

	f, err := os.Create(dest)
	if err != nil {
		return 0, errors.Wrap(err, "failed to create video file")
	}

	w := &progressWriter{w: f, total: total, progress: progress}
	n, err := io.Copy(w, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dest)
		return n, errors.Wrap(err, "failed to save video")
	}

	if n == 0 {
		os.Remove(dest)
		return 0, errors.New("downloaded video is empty")
	}
	if total > 0 && n != total {
		os.Remove(dest)
		return n, errors.Errorf("short download: got %d of %d bytes", n, total)
	}

	if err := VerifyVideo(dest); err != nil {
		os.Remove(dest)
		return n, err
	}

	logrus.Debugf("saved video %s (%d bytes)", dest, n)
	return n, nil
}

// VerifyVideo 通过文件头判断是否为视频
func VerifyVideo(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "failed to open video")
	}
	defer f.Close()

	head := make([]byte, headerSize)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return errors.Wrap(err, "failed to read video header")
	}

	if !filetype.IsVideo(head[:n]) {
		return ErrNotVideo
	}
	return nil
}

// progressWriter reports progress at most once per 10% step.
type progressWriter struct {
	w        io.Writer
	total    int64
	written  int64
	lastStep int64
	progress ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)

	if p.progress != nil {
		if p.total <= 0 {
			p.progress(p.written, 0)
		} else if step := p.written * 10 / p.total; step > p.lastStep || p.written == p.total {
			p.lastStep = step
			p.progress(p.written, p.total)
		}
	}
	return n, err
}
