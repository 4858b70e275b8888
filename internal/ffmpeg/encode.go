package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// EncodeOptions holds parameters for writing rgb24 frames to a video file.
type EncodeOptions struct {
	Binary      string
	Output      string
	Width       int
	Height      int
	FPS         float64
	Codec       string
	PixelFormat string
	// CRF is the constant rate factor; nil leaves the codec default.
	CRF     *int
	Timeout time.Duration
}

func encodeArgs(opts EncodeOptions) []string {
	codec := opts.Codec
	if codec == "" {
		codec = "libx264"
	}
	pixFmt := opts.PixelFormat
	if pixFmt == "" {
		pixFmt = "yuv420p"
	}

	args := []string{
		"-y",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-r", strconv.FormatFloat(opts.FPS, 'f', -1, 64),
		"-i", "pipe:0",
		"-an",
		"-c:v", codec,
		"-pix_fmt", pixFmt,
	}
	if opts.CRF != nil {
		args = append(args, "-crf", strconv.Itoa(*opts.CRF))
	}
	// yuv420p needs even dimensions.
	if pixFmt == "yuv420p" && (opts.Width%2 != 0 || opts.Height%2 != 0) {
		args = append(args, "-vf", "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	}
	return append(args, "-movflags", "+faststart", opts.Output)
}

// Encode pipes packed rgb24 frames into ffmpeg and writes opts.Output.
func Encode(ctx context.Context, opts EncodeOptions, frames [][]byte, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		return fmt.Errorf("invalid output size %dx%d", opts.Width, opts.Height)
	}
	if opts.FPS <= 0 {
		return fmt.Errorf("invalid fps %v", opts.FPS)
	}
	binary := opts.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return fmt.Errorf("ffmpeg not found in $PATH: %w", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := encodeArgs(opts)
	logger.Debug("starting ffmpeg encode", zap.String("cmd", binary+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	frameSize := opts.Width * opts.Height * 3
	var writeErr error
	for i, f := range frames {
		if len(f) != frameSize {
			writeErr = fmt.Errorf("frame %d has %d bytes, want %d", i, len(f), frameSize)
			break
		}
		if _, err := stdin.Write(f); err != nil {
			writeErr = fmt.Errorf("writing frame %d: %w", i, err)
			break
		}
	}
	closeErr := stdin.Close()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg error: %w - stderr: %s", err, stderr.String())
	}
	if writeErr != nil {
		return writeErr
	}
	if closeErr != nil {
		return fmt.Errorf("closing ffmpeg stdin: %w", closeErr)
	}

	logger.Debug("ffmpeg encode finished", zap.String("output", opts.Output), zap.Int("frames", len(frames)))
	return nil
}
