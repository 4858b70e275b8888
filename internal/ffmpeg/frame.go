package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// TimeRange represents start and end time for video processing
type TimeRange struct {
	Start string
	End   string
}

// VideoInfo describes the first video stream of a file.
type VideoInfo struct {
	Width  int
	Height int
	FPS    float64
	HDR    bool
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
}

type probeStream struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	AvgFrameRate  string `json:"avg_frame_rate"`
	ColorTransfer string `json:"color_transfer"`
	ColorSpace    string `json:"color_space"`
	MasterDisplay any    `json:"master_display"`
}

// Probe runs ffprobe once and extracts dimensions, frame rate and HDR hints.
func Probe(ctx context.Context, probeBinary, videoPath string) (VideoInfo, error) {
	if probeBinary == "" {
		probeBinary = "ffprobe"
	}
	args := []string{
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,avg_frame_rate,color_transfer,color_space,master_display",
		"-of", "json",
		videoPath,
	}

	cmd := exec.CommandContext(ctx, probeBinary, args...)
	output, err := cmd.Output()
	if err != nil {
		return VideoInfo{}, fmt.Errorf("ffprobe error: %w", err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (VideoInfo, error) {
	var data probeOutput
	if err := json.Unmarshal(output, &data); err != nil {
		return VideoInfo{}, fmt.Errorf("error parsing ffprobe output: %w", err)
	}
	if len(data.Streams) == 0 {
		return VideoInfo{}, fmt.Errorf("no video streams found")
	}

	stream := data.Streams[0]
	if stream.Width <= 0 {
		return VideoInfo{}, fmt.Errorf("invalid width")
	}
	if stream.Height <= 0 {
		return VideoInfo{}, fmt.Errorf("invalid height")
	}

	fps, err := parseFrameRate(stream.AvgFrameRate)
	if err != nil {
		return VideoInfo{}, err
	}

	return VideoInfo{
		Width:  stream.Width,
		Height: stream.Height,
		FPS:    fps,
		HDR:    isHDR(stream),
	}, nil
}

// parseFrameRate handles both "24000/1001" and "25" forms.
func parseFrameRate(rate string) (float64, error) {
	if rate == "" {
		return 0, fmt.Errorf("invalid framerate data")
	}
	if num, den, ok := strings.Cut(rate, "/"); ok {
		n, err1 := strconv.ParseFloat(num, 64)
		d, err2 := strconv.ParseFloat(den, 64)
		if err1 != nil || err2 != nil || d == 0 {
			return 0, fmt.Errorf("invalid framerate format: %q", rate)
		}
		return n / d, nil
	}
	fps, err := strconv.ParseFloat(rate, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid framerate: %w", err)
	}
	return fps, nil
}

func isHDR(stream probeStream) bool {
	transfer := strings.ToLower(stream.ColorTransfer)
	if strings.Contains(transfer, "smpte2084") || strings.Contains(transfer, "arib-std-b67") {
		return true
	}
	if strings.Contains(strings.ToLower(stream.ColorSpace), "bt2020") {
		return true
	}
	return stream.MasterDisplay != nil
}

// parseTimeString converts time strings like "00:05:10" to seconds
func parseTimeString(timeStr string) (float64, error) {
	if seconds, err := strconv.ParseFloat(timeStr, 64); err == nil {
		return seconds, nil
	}

	parts := strings.Split(timeStr, ":")
	if len(parts) == 3 {
		h, errH := strconv.ParseFloat(parts[0], 64)
		m, errM := strconv.ParseFloat(parts[1], 64)
		s, errS := strconv.ParseFloat(parts[2], 64)

		if errH == nil && errM == nil && errS == nil {
			return h*3600 + m*60 + s, nil
		}
	}

	return 0, fmt.Errorf("invalid time format: %s", timeStr)
}

// args renders the -ss/-t input options for the range.
func (tr *TimeRange) args() []string {
	if tr == nil || tr.Start == "" {
		return nil
	}
	args := []string{"-ss", tr.Start}
	if tr.End == "" {
		return args
	}

	startTime, endTime := 0.0, 0.0
	if s, err := parseTimeString(tr.Start); err == nil {
		startTime = s
	}
	if e, err := parseTimeString(tr.End); err == nil {
		endTime = e
	}
	if endTime > startTime {
		args = append(args, "-t", fmt.Sprintf("%.3f", endTime-startTime))
	}
	return args
}
