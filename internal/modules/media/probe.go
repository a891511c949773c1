package media

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// MediaInfo contains metadata about a media file
type MediaInfo struct {
	Format     string       `json:"format"`
	Duration   float64      `json:"duration"`
	Size       int64        `json:"size"`
	BitRate    int          `json:"bitRate"`
	VideoCodec string       `json:"videoCodec,omitempty"`
	AudioCodec string       `json:"audioCodec,omitempty"`
	Width      int          `json:"width,omitempty"`
	Height     int          `json:"height,omitempty"`
	FrameRate  float64      `json:"frameRate,omitempty"`
	Streams    []StreamInfo `json:"streams"`
}

// StreamInfo contains information about a media stream
type StreamInfo struct {
	Index      int    `json:"index"`
	Type       string `json:"type"`
	Codec      string `json:"codec"`
	BitRate    int    `json:"bitRate,omitempty"`
	Channels   int    `json:"channels,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
}

// ffprobeOutput represents the JSON output from ffprobe
type ffprobeOutput struct {
	Format struct {
		FormatName string `json:"format_name"`
		Duration   string `json:"duration"`
		Size       string `json:"size"`
		BitRate    string `json:"bit_rate"`
	} `json:"format"`
	Streams []struct {
		Index        int    `json:"index"`
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width,omitempty"`
		Height       int    `json:"height,omitempty"`
		RFrameRate   string `json:"r_frame_rate,omitempty"`
		AvgFrameRate string `json:"avg_frame_rate,omitempty"`
		BitRate      string `json:"bit_rate,omitempty"`
		Channels     int    `json:"channels,omitempty"`
		SampleRate   string `json:"sample_rate,omitempty"`
	} `json:"streams"`
}

// Probe extracts metadata from a media file with ffprobe.
func (p *Processor) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	args := []string{
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	}

	var stdout bytes.Buffer
	result, err := p.runner.Run(ctx, p.ffprobePath, args, &stdout)
	if err != nil {
		p.logger.Error("ffprobe failed", zap.String("path", path), zap.Int("exit_code", result.ExitCode), zap.Error(err))
		return nil, &EngineError{Op: "probe", Message: fmt.Sprintf("ffprobe failed: %v", err)}
	}

	info, err := parseProbe(stdout.Bytes())
	if err != nil {
		p.logger.Error("Failed to parse ffprobe output", zap.Error(err))
		return nil, err
	}
	return info, nil
}

func parseProbe(data []byte) (*MediaInfo, error) {
	var probeData ffprobeOutput
	if err := json.Unmarshal(data, &probeData); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &MediaInfo{
		Format:  probeData.Format.FormatName,
		Streams: make([]StreamInfo, 0, len(probeData.Streams)),
	}
	if d, err := strconv.ParseFloat(probeData.Format.Duration, 64); err == nil {
		info.Duration = d
	}
	if s, err := strconv.ParseInt(probeData.Format.Size, 10, 64); err == nil {
		info.Size = s
	}
	if br, err := strconv.Atoi(probeData.Format.BitRate); err == nil {
		info.BitRate = br
	}

	for _, stream := range probeData.Streams {
		streamInfo := StreamInfo{
			Index: stream.Index,
			Type:  stream.CodecType,
			Codec: stream.CodecName,
		}
		if br, err := strconv.Atoi(stream.BitRate); err == nil {
			streamInfo.BitRate = br
		}

		switch stream.CodecType {
		case "video":
			// first video stream wins
			if info.VideoCodec == "" {
				info.VideoCodec = stream.CodecName
				info.Width = stream.Width
				info.Height = stream.Height
				info.FrameRate = frameRate(stream.AvgFrameRate, stream.RFrameRate)
			}
		case "audio":
			if info.AudioCodec == "" {
				info.AudioCodec = stream.CodecName
			}
			streamInfo.Channels = stream.Channels
			if sr, err := strconv.Atoi(stream.SampleRate); err == nil {
				streamInfo.SampleRate = sr
			}
		}

		info.Streams = append(info.Streams, streamInfo)
	}

	return info, nil
}

// frameRate parses "30000/1001" style rates, preferring the average rate.
func frameRate(avg, r string) float64 {
	rate := avg
	if rate == "" || rate == "0/0" {
		rate = r
	}
	num, den, ok := strings.Cut(rate, "/")
	if !ok {
		return 0
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d <= 0 {
		return 0
	}
	return n / d
}
