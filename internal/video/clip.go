package video

import (
	"context"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"framestab/internal/ffmpeg"
	"framestab/internal/worker"
)

// DefaultFPS is used for PNG directories, which carry no timing.
const DefaultFPS = 24.0

var videoExtensions = map[string]bool{
	".mp4":  true,
	".mkv":  true,
	".mov":  true,
	".webm": true,
	".avi":  true,
}

// Clip is a loaded sequence together with its playback rate.
type Clip struct {
	Frames Sequence
	FPS    float64
}

// Duration returns the playback length of the clip.
func (c Clip) Duration() time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(float64(len(c.Frames)) / c.FPS * float64(time.Second))
}

// LoadOptions controls how a clip is read.
type LoadOptions struct {
	FFmpeg    string
	FFprobe   string
	FPS       float64
	TimeRange *ffmpeg.TimeRange
	MaxFrames int
	MaxBytes  int64
	Timeout   time.Duration
	Workers   int
	Logger    *zap.Logger
}

// SaveOptions controls how a clip is written.
type SaveOptions struct {
	FFmpeg string
	// CRF is passed to the encoder when set; nil keeps the codec default.
	CRF     *int
	Timeout time.Duration
	Workers int
	Logger  *zap.Logger
}

// IsVideoPath reports whether path names a container Save would encode.
func IsVideoPath(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// Load reads a clip from a directory of PNG frames or from any file ffmpeg can decode.
func Load(ctx context.Context, path string, opts LoadOptions) (Clip, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Clip{}, fmt.Errorf("cannot access input '%s': %w", path, err)
	}
	if info.IsDir() {
		return loadPNGDir(path, opts)
	}
	return loadVideo(ctx, path, opts)
}

func loadPNGDir(dir string, opts LoadOptions) (Clip, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.png"))
	if err != nil {
		return Clip{}, err
	}
	if len(paths) == 0 {
		return Clip{}, fmt.Errorf("no png frames in %s: %w", dir, ErrEmptySequence)
	}
	sort.Strings(paths)
	if opts.MaxFrames > 0 && len(paths) > opts.MaxFrames {
		paths = paths[:opts.MaxFrames]
	}

	frames, err := worker.Map(paths, opts.Workers, func(_ int, p string) (Frame, error) {
		return readPNG(p)
	})
	if err != nil {
		return Clip{}, err
	}

	fps := opts.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	return Clip{Frames: frames, FPS: fps}, nil
}

func readPNG(path string) (Frame, error) {
	file, err := os.Open(path)
	if err != nil {
		return Frame{}, err
	}
	defer file.Close()

	img, err := png.Decode(file)
	if err != nil {
		return Frame{}, fmt.Errorf("error decoding %s: %w", path, err)
	}
	return FromImage(img), nil
}

func loadVideo(ctx context.Context, path string, opts LoadOptions) (Clip, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	info, err := ffmpeg.Probe(ctx, opts.FFprobe, path)
	if err != nil {
		return Clip{}, fmt.Errorf("error getting video info: %w", err)
	}
	logger.Debug("probed input",
		zap.String("path", path),
		zap.Int("width", info.Width),
		zap.Int("height", info.Height),
		zap.Float64("fps", info.FPS),
		zap.Bool("hdr", info.HDR),
	)

	raw, err := ffmpeg.Decode(ctx, ffmpeg.DecodeOptions{
		Binary:    opts.FFmpeg,
		URL:       path,
		Width:     info.Width,
		Height:    info.Height,
		TimeRange: opts.TimeRange,
		MaxFrames: opts.MaxFrames,
		MaxBytes:  opts.MaxBytes,
		Timeout:   opts.Timeout,
	}, logger)
	if err != nil {
		return Clip{}, err
	}

	frames, err := SplitRGB24(raw, info.Width, info.Height)
	if err != nil {
		return Clip{}, fmt.Errorf("error splitting %s: %w", path, err)
	}

	fps := info.FPS
	if opts.FPS > 0 {
		fps = opts.FPS
	}
	return Clip{Frames: frames, FPS: fps}, nil
}

// Save writes the clip as a video when path has a video extension and as
// numbered PNG frames in the directory path otherwise.
func Save(ctx context.Context, clip Clip, path string, opts SaveOptions) error {
	if err := clip.Frames.Validate(); err != nil {
		return err
	}
	if IsVideoPath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return fmt.Errorf("error creating output directory: %w", err)
		}
		width, height := clip.Frames.Size()
		fps := clip.FPS
		if fps <= 0 {
			fps = DefaultFPS
		}
		return ffmpeg.Encode(ctx, ffmpeg.EncodeOptions{
			Binary:  opts.FFmpeg,
			Output:  path,
			Width:   width,
			Height:  height,
			FPS:     fps,
			CRF:     opts.CRF,
			Timeout: opts.Timeout,
		}, clip.Frames.RGB24(), opts.Logger)
	}

	if err := os.MkdirAll(path, 0755); err != nil {
		return fmt.Errorf("error creating output directory: %w", err)
	}
	return worker.ForEach(len(clip.Frames), opts.Workers, func(i int) error {
		return writePNG(filepath.Join(path, fmt.Sprintf("frame_%04d.png", i)), clip.Frames[i])
	})
}

func writePNG(path string, f Frame) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("error creating image file: %w", err)
	}
	if err := png.Encode(file, f.Image()); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}
