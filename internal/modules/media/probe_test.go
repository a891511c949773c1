package media

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleProbe = `{
  "format": {"format_name": "mov,mp4,m4a,3gp,3g2,mj2", "duration": "42.500000", "size": "1048576", "bit_rate": "197379"},
  "streams": [
    {"index": 0, "codec_type": "video", "codec_name": "h264", "width": 1920, "height": 1080, "avg_frame_rate": "30000/1001", "r_frame_rate": "30/1", "bit_rate": "180000"},
    {"index": 1, "codec_type": "audio", "codec_name": "aac", "channels": 2, "sample_rate": "48000", "bit_rate": "128000"}
  ]
}`

func TestProbe(t *testing.T) {
	runner := &fakeRunner{
		run: func(_ context.Context, _ string, _ []string, stdout io.Writer) (commandResult, error) {
			io.WriteString(stdout, sampleProbe)
			return commandResult{}, nil
		},
	}
	p := newTestProcessor(runner)

	info, err := p.Probe(context.Background(), "/media/clip.mp4")
	require.NoError(t, err)

	assert.Equal(t, "ffprobe", runner.calls[0][0])
	assert.Equal(t, "/media/clip.mp4", runner.calls[0][len(runner.calls[0])-1])

	assert.Equal(t, 42.5, info.Duration)
	assert.Equal(t, int64(1048576), info.Size)
	assert.Equal(t, 197379, info.BitRate)
	assert.Equal(t, "h264", info.VideoCodec)
	assert.Equal(t, "aac", info.AudioCodec)
	assert.Equal(t, 1920, info.Width)
	assert.Equal(t, 1080, info.Height)
	assert.InDelta(t, 29.97, info.FrameRate, 0.01)
	require.Len(t, info.Streams, 2)
	assert.Equal(t, 48000, info.Streams[1].SampleRate)
	assert.Equal(t, 2, info.Streams[1].Channels)
}

func TestProbeFailure(t *testing.T) {
	runner := &fakeRunner{run: func(context.Context, string, []string, io.Writer) (commandResult, error) {
		return commandResult{ExitCode: 1}, errors.New("exit status 1")
	}}
	p := newTestProcessor(runner)

	_, err := p.Probe(context.Background(), "/media/missing.mp4")
	var engineErr *EngineError
	assert.ErrorAs(t, err, &engineErr)
}

func TestParseProbeRejectsGarbage(t *testing.T) {
	_, err := parseProbe([]byte("not json"))
	assert.Error(t, err)
}

func TestFrameRate(t *testing.T) {
	assert.Equal(t, 25.0, frameRate("25/1", ""))
	assert.Equal(t, 30.0, frameRate("0/0", "30/1"))
	assert.Equal(t, 0.0, frameRate("", ""))
	assert.Equal(t, 0.0, frameRate("30/0", ""))
}
