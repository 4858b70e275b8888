package ffmpeg

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbe(t *testing.T) {
	t.Run("fractional frame rate", func(t *testing.T) {
		out := `{"streams":[{"width":512,"height":288,"avg_frame_rate":"24000/1001"}]}`
		info, err := parseProbe([]byte(out))
		require.NoError(t, err)
		assert.Equal(t, 512, info.Width)
		assert.Equal(t, 288, info.Height)
		assert.InDelta(t, 23.976, info.FPS, 1e-3)
		assert.False(t, info.HDR)
	})

	t.Run("hdr transfer", func(t *testing.T) {
		out := `{"streams":[{"width":64,"height":64,"avg_frame_rate":"25","color_transfer":"smpte2084"}]}`
		info, err := parseProbe([]byte(out))
		require.NoError(t, err)
		assert.Equal(t, 25.0, info.FPS)
		assert.True(t, info.HDR)
	})

	t.Run("bt2020 color space", func(t *testing.T) {
		out := `{"streams":[{"width":64,"height":64,"avg_frame_rate":"30/1","color_space":"bt2020nc"}]}`
		info, err := parseProbe([]byte(out))
		require.NoError(t, err)
		assert.True(t, info.HDR)
	})

	t.Run("no streams", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[]}`))
		assert.ErrorContains(t, err, "no video streams")
	})

	t.Run("zero denominator", func(t *testing.T) {
		_, err := parseProbe([]byte(`{"streams":[{"width":2,"height":2,"avg_frame_rate":"0/0"}]}`))
		assert.ErrorContains(t, err, "invalid framerate")
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := parseProbe([]byte(`not json`))
		assert.Error(t, err)
	})
}

func TestParseTimeString(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		err  bool
	}{
		{in: "12.5", want: 12.5},
		{in: "00:01:30", want: 90},
		{in: "01:00:00", want: 3600},
		{in: "1:2", err: true},
		{in: "abc", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseTimeString(tt.in)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTimeRangeArgs(t *testing.T) {
	var nilRange *TimeRange
	assert.Nil(t, nilRange.args())
	assert.Equal(t, []string{"-ss", "5"}, (&TimeRange{Start: "5"}).args())
	assert.Equal(t, []string{"-ss", "00:00:05", "-t", "2.500"}, (&TimeRange{Start: "00:00:05", End: "7.5"}).args())
	assert.Equal(t, []string{"-ss", "10"}, (&TimeRange{Start: "10", End: "5"}).args())
}

func TestDecodeArgs(t *testing.T) {
	args := decodeArgs(DecodeOptions{
		URL:       "in.mp4",
		Width:     64,
		Height:    32,
		MaxFrames: 16,
		TimeRange: &TimeRange{Start: "1"},
	})
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-ss 1 ")
	assert.Contains(t, joined, "-i in.mp4")
	assert.Contains(t, joined, "-s 64x32")
	assert.Contains(t, joined, "-frames:v 16")
	assert.Equal(t, []string{"-f", "rawvideo", "-pix_fmt", "rgb24", "pipe:1"}, args[len(args)-5:])
	assert.Less(t, strings.Index(joined, "-ss"), strings.Index(joined, "-i in.mp4"))
}

func TestEncodeArgs(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		args := encodeArgs(EncodeOptions{Output: "out.mp4", Width: 64, Height: 64, FPS: 24})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-f rawvideo -pix_fmt rgb24 -s 64x64 -r 24 -i pipe:0")
		assert.Contains(t, joined, "-c:v libx264 -pix_fmt yuv420p")
		assert.NotContains(t, joined, "-crf")
		assert.NotContains(t, joined, "pad=")
		assert.Equal(t, "out.mp4", args[len(args)-1])
	})

	t.Run("odd size pads and crf", func(t *testing.T) {
		args := encodeArgs(EncodeOptions{Output: "o.mkv", Width: 63, Height: 64, FPS: 23.976, CRF: ptr(18)})
		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-r 23.976")
		assert.Contains(t, joined, "-crf 18")
		assert.Contains(t, joined, "pad=ceil(iw/2)*2:ceil(ih/2)*2")
	})

	t.Run("lossless crf", func(t *testing.T) {
		args := encodeArgs(EncodeOptions{Output: "o.mp4", Width: 64, Height: 64, FPS: 24, CRF: ptr(0)})
		assert.Contains(t, strings.Join(args, " "), "-crf 0")
	})
}

func ptr[T any](v T) *T { return &v }

func TestReadStreamToMemory(t *testing.T) {
	data := strings.Repeat("x", 1000)

	got, err := readStreamToMemory(io.NopCloser(strings.NewReader(data)), 64, 0)
	require.NoError(t, err)
	assert.Len(t, got, 1000)

	got, err = readStreamToMemory(io.NopCloser(strings.NewReader(data)), 64, 300)
	require.NoError(t, err)
	assert.Len(t, got, 300)
}
