package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DecodeOptions holds parameters for reading a video as packed rgb24.
type DecodeOptions struct {
	Binary    string
	URL       string
	Width     int
	Height    int
	TimeRange *TimeRange
	MaxFrames int
	MaxBytes  int64
	Timeout   time.Duration
}

func decodeArgs(opts DecodeOptions) []string {
	args := []string{"-nostdin", "-loglevel", "error"}
	args = append(args, opts.TimeRange.args()...)
	args = append(args,
		"-probesize", "32M",
		"-analyzeduration", "10M",
		"-i", opts.URL,
		"-an",
	)
	if opts.Width > 0 && opts.Height > 0 {
		args = append(args, "-s", fmt.Sprintf("%dx%d", opts.Width, opts.Height))
	}
	if opts.MaxFrames > 0 {
		args = append(args, "-frames:v", fmt.Sprintf("%d", opts.MaxFrames))
	}
	return append(args,
		"-f", "rawvideo",
		"-pix_fmt", "rgb24",
		"pipe:1",
	)
}

// Decode runs ffmpeg and returns the raw rgb24 stream, bounded by MaxBytes.
func Decode(ctx context.Context, opts DecodeOptions, logger *zap.Logger) ([]byte, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	binary := opts.Binary
	if binary == "" {
		binary = "ffmpeg"
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, fmt.Errorf("ffmpeg not found in $PATH: %w", err)
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	args := decodeArgs(opts)
	logger.Debug("starting ffmpeg decode", zap.String("cmd", binary+" "+strings.Join(args, " ")))

	cmd := exec.CommandContext(ctx, binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	data, err := readStreamToMemory(stdout, 64*1024, opts.MaxBytes)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg process canceled or timed out: %w", ctx.Err())
		}
		// Hitting MaxBytes closes the pipe early; ffmpeg then exits on a broken pipe.
		if opts.MaxBytes <= 0 || int64(len(data)) < opts.MaxBytes {
			return nil, fmt.Errorf("ffmpeg error: %w - stderr: %s", err, stderr.String())
		}
	}

	logger.Debug("ffmpeg decode finished", zap.Int("bytes", len(data)))
	return data, nil
}

// readStreamToMemory drains stream, reading at most maxBytes when maxBytes > 0.
func readStreamToMemory(stream io.ReadCloser, chunkSize int, maxBytes int64) ([]byte, error) {
	defer stream.Close()

	var reader io.Reader = stream
	if maxBytes > 0 {
		reader = io.LimitReader(stream, maxBytes)
	}
	buffer := &bytes.Buffer{}
	chunk := make([]byte, chunkSize)

	for {
		n, err := reader.Read(chunk)
		if n > 0 {
			buffer.Write(chunk[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("stream read error: %w", err)
		}
	}
	return buffer.Bytes(), nil
}
