package video

import "fmt"

// SplitRGB24 cuts a packed rgb24 stream into frames. A trailing partial frame
// is dropped, as ffmpeg may be stopped mid-frame by a byte limit.
func SplitRGB24(buffer []byte, width, height int) (Sequence, error) {
	frameSize := width * height * Channels
	if frameSize <= 0 {
		return nil, fmt.Errorf("%w: invalid size %dx%d", ErrMalformedFrame, width, height)
	}
	if len(buffer) < frameSize {
		return nil, fmt.Errorf("%w: %d bytes, frame is %d", errShortRGB24Buffer, len(buffer), frameSize)
	}

	count := len(buffer) / frameSize
	seq := make(Sequence, 0, count)
	for i := 0; i < count; i++ {
		idx := i * frameSize
		f, err := FromRGB24(buffer[idx:idx+frameSize], width, height)
		if err != nil {
			return nil, fmt.Errorf("frame %d: %w", i, err)
		}
		seq = append(seq, f)
	}
	return seq, nil
}
