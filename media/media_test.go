package media

import (
	"context"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const probeJSON = `{
  "streams": [
    {"codec_type": "video", "duration": "400.040000", "width": 1920, "height": 1080},
    {"codec_type": "audio", "duration": "399.980000"}
  ],
  "format": {"duration": "400.100000"}
}`

func TestParseProbe(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    *Info
		wantErr bool
	}{
		{
			name:  "video and audio",
			input: probeJSON,
			want:  &Info{Duration: 400.04, HasAudio: true, Width: 1920, Height: 1080},
		},
		{
			name:  "stream without duration uses format",
			input: `{"streams":[{"codec_type":"video","width":720,"height":1280}],"format":{"duration":"12.5"}}`,
			want:  &Info{Duration: 12.5, Width: 720, Height: 1280},
		},
		{
			name:    "audio only",
			input:   `{"streams":[{"codec_type":"audio","duration":"10"}],"format":{"duration":"10"}}`,
			wantErr: true,
		},
		{
			name:    "no duration anywhere",
			input:   `{"streams":[{"codec_type":"video","duration":"N/A"}],"format":{}}`,
			wantErr: true,
		},
		{
			name:    "garbage",
			input:   `not json`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseProbe([]byte(tt.input))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseProbe_UnreadableIsTyped(t *testing.T) {
	_, err := ParseProbe([]byte(`{"streams":[{"codec_type":"video"}]}`))
	assert.ErrorIs(t, err, ErrUnreadable)
}

func TestFFmpeg_Probe(t *testing.T) {
	f := New("", "")
	f.probe = func(ctx context.Context, path string) ([]byte, error) {
		assert.Equal(t, "/tmp/in.mp4", path)
		return []byte(probeJSON), nil
	}

	info, err := f.Probe(context.Background(), "/tmp/in.mp4")
	require.NoError(t, err)
	assert.InDelta(t, 400.04, info.Duration, 1e-9)

	f.probe = func(ctx context.Context, path string) ([]byte, error) {
		return nil, errors.New("exit status 1")
	}
	_, err = f.Probe(context.Background(), "/tmp/in.mp4")
	require.Error(t, err)
}

func TestFFmpeg_Probe_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New("", "").Probe(ctx, "/tmp/in.mp4")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAtempoChain(t *testing.T) {
	assert.Equal(t, []float64{1.25}, AtempoChain(1.25))
	assert.Equal(t, []float64{2}, AtempoChain(2))
	assert.Equal(t, []float64{2, 1.5}, AtempoChain(3))
	assert.Equal(t, []float64{2, 2}, AtempoChain(4))
	assert.Equal(t, []float64{0.5, 0.5}, AtempoChain(0.25))

	for _, speed := range []float64{0.1, 0.7, 1.25, 3.3, 10} {
		product := 1.0
		for _, f := range AtempoChain(speed) {
			assert.GreaterOrEqual(t, f, 0.5)
			assert.LessOrEqual(t, f, 2.0)
			product *= f
		}
		assert.InDelta(t, speed, product, 1e-9)
	}
}

func TestBuildArgs(t *testing.T) {
	args, err := BuildArgs(Job{
		Input:    "/work/source.mp4",
		Output:   "/work/part_2.mp4",
		Start:    200,
		Duration: 200,
		Speed:    1.25,
		HasAudio: true,
	})
	require.NoError(t, err)

	cmd := strings.Join(args, " ")
	assert.Contains(t, cmd, "-ss 200.000")
	assert.Contains(t, cmd, "-t 200.000")
	assert.Contains(t, cmd, "-i /work/source.mp4")
	assert.Contains(t, cmd, "setpts=PTS/1.25")
	assert.Contains(t, cmd, "atempo=1.25")
	assert.Contains(t, cmd, "-c:v libx264")
	assert.Contains(t, cmd, "-c:a aac")
	assert.Contains(t, cmd, "-movflags +faststart")
	assert.Contains(t, args, "/work/part_2.mp4")
	assert.Contains(t, args, "-y")

	// input options come before the input
	assert.Less(t, strings.Index(cmd, "-ss"), strings.Index(cmd, "-i /work/source.mp4"))
}

func TestBuildArgs_NoAudio(t *testing.T) {
	args, err := BuildArgs(Job{Input: "in.mp4", Output: "out.mp4", Duration: 10, Speed: 3})
	require.NoError(t, err)

	cmd := strings.Join(args, " ")
	assert.Contains(t, cmd, "setpts=PTS/3")
	assert.NotContains(t, cmd, "atempo")
	assert.NotContains(t, cmd, "-c:a")
}

func TestBuildArgs_Invalid(t *testing.T) {
	_, err := BuildArgs(Job{Input: "in.mp4", Output: "out.mp4", Duration: 0, Speed: 1})
	require.Error(t, err)

	_, err = BuildArgs(Job{Input: "in.mp4", Output: "out.mp4", Duration: 5, Speed: 0})
	require.Error(t, err)

	_, err = BuildArgs(Job{Output: "out.mp4", Duration: 5, Speed: 1})
	require.Error(t, err)
}

func TestFFmpeg_Transform_Failure(t *testing.T) {
	// "false" exits non-zero without reading its arguments
	f := New("false", "")
	err := f.Transform(context.Background(), Job{Input: "in.mp4", Output: "out.mp4", Duration: 5, Speed: 1.25})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ffmpeg failed")
}
