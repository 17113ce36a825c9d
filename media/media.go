// Package media probes source videos and renders sped-up segments with ffmpeg.
package media

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

const (
	defaultFFmpegPath  = "ffmpeg"
	defaultFFprobePath = "ffprobe"

	// stderrTail bounds how much ffmpeg output is kept for error messages.
	stderrTail = 512
)

// ErrUnreadable 无法读取有效时长
var ErrUnreadable = errors.New("media has no readable duration")

// Info 视频元数据
type Info struct {
	Duration float64 `json:"duration"`
	HasAudio bool    `json:"has_audio"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
}

// Job 一次分段渲染：将 Input 的 [Start, Start+Duration) 以 Speed 倍速写入 Output
type Job struct {
	Input    string
	Output   string
	Start    float64
	Duration float64
	Speed    float64
	HasAudio bool
}

// FFmpeg 调用 ffmpeg 和 ffprobe
type FFmpeg struct {
	ffmpegPath  string
	ffprobePath string
	probe       func(ctx context.Context, path string) ([]byte, error)
}

// New 创建 FFmpeg，路径为空时使用 PATH 中的程序
func New(ffmpegPath, ffprobePath string) *FFmpeg {
	if ffmpegPath == "" {
		ffmpegPath = defaultFFmpegPath
	}
	if ffprobePath == "" {
		ffprobePath = defaultFFprobePath
	}
	f := &FFmpeg{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
	f.probe = f.runProbe
	return f
}

// CheckTools 检查 ffmpeg 和 ffprobe 是否可用
func (f *FFmpeg) CheckTools() error {
	for _, bin := range []string{f.ffmpegPath, f.ffprobePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return errors.Wrapf(err, "%s not found", bin)
		}
	}
	return nil
}

// Probe 读取视频时长和音视频流信息
func (f *FFmpeg) Probe(ctx context.Context, path string) (*Info, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := f.probe(ctx, path)
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe %s", path)
	}
	info, err := ParseProbe(out)
	if err != nil {
		return nil, errors.Wrapf(err, "ffprobe %s", path)
	}
	logrus.Debugf("probed %s: %.2fs audio=%v %dx%d", path, info.Duration, info.HasAudio, info.Width, info.Height)
	return info, nil
}

// runProbe asks ffprobe for the same JSON document ffmpeg.Probe reads.
func (f *FFmpeg) runProbe(ctx context.Context, path string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.ffprobePath, "-show_format", "-show_streams", "-of", "json", path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, errors.Wrap(err, tail(stderr.String(), stderrTail))
	}
	return stdout.Bytes(), nil
}

type probeOutput struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Duration  string `json:"duration"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ParseProbe decodes ffprobe JSON. The first video stream's duration is
// preferred, then the container duration.
func ParseProbe(data []byte) (*Info, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, errors.Wrap(err, "decode ffprobe output")
	}

	info := &Info{}
	foundVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if foundVideo {
				continue
			}
			foundVideo = true
			info.Width, info.Height = s.Width, s.Height
			info.Duration = parseSeconds(s.Duration)
		case "audio":
			info.HasAudio = true
		}
	}
	if !foundVideo {
		return nil, errors.Wrap(ErrUnreadable, "no video stream")
	}
	if info.Duration <= 0 {
		info.Duration = parseSeconds(out.Format.Duration)
	}
	if info.Duration <= 0 {
		return nil, ErrUnreadable
	}
	return info, nil
}

func parseSeconds(s string) float64 {
	d, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return d
}

// Transform 渲染一个分段
func (f *FFmpeg) Transform(ctx context.Context, job Job) error {
	args, err := BuildArgs(job)
	if err != nil {
		return err
	}

	logrus.Debugf("ffmpeg %s", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.ffmpegPath, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return errors.Wrapf(err, "ffmpeg failed: %s", tail(stderr.String(), stderrTail))
	}
	return nil
}

// BuildArgs returns the ffmpeg arguments for job, excluding the binary.
func BuildArgs(job Job) ([]string, error) {
	if job.Input == "" || job.Output == "" {
		return nil, errors.New("input and output are required")
	}
	if job.Duration <= 0 || job.Start < 0 || job.Speed <= 0 {
		return nil, errors.Errorf("invalid segment: start=%v duration=%v speed=%v", job.Start, job.Duration, job.Speed)
	}

	input := ffmpeg.Input(job.Input, ffmpeg.KwArgs{
		"ss": seconds(job.Start),
		"t":  seconds(job.Duration),
	})

	video := input.Video()
	if job.Speed != 1 {
		video = video.Filter("setpts", ffmpeg.Args{"PTS/" + number(job.Speed)})
	}
	streams := []*ffmpeg.Stream{video}

	kw := ffmpeg.KwArgs{
		"c:v":      "libx264",
		"preset":   "fast",
		"crf":      "23",
		"pix_fmt":  "yuv420p",
		"movflags": "+faststart",
	}

	if job.HasAudio {
		audio := input.Audio()
		if job.Speed != 1 {
			for _, factor := range AtempoChain(job.Speed) {
				audio = audio.Filter("atempo", ffmpeg.Args{number(factor)})
			}
		}
		streams = append(streams, audio)
		kw["c:a"] = "aac"
		kw["b:a"] = "128k"
	}

	return ffmpeg.Output(streams, job.Output, kw).OverWriteOutput().GetArgs(), nil
}

// AtempoChain 将 speed 拆成若干个 [0.5, 2] 之间的系数，单个 atempo 只接受这个范围
func AtempoChain(speed float64) []float64 {
	var chain []float64
	for speed > 2 {
		chain = append(chain, 2)
		speed /= 2
	}
	for speed < 0.5 {
		chain = append(chain, 0.5)
		speed /= 0.5
	}
	return append(chain, speed)
}

func seconds(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
