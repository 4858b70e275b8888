package stabilize

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"pgregory.net/rapid"

	"framestab/internal/video"
)

type recordingObserver struct {
	mu       sync.Mutex
	stages   []string
	failures []string
}

func (r *recordingObserver) ObserveStage(stage string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stages = append(r.stages, stage)
}

func (r *recordingObserver) ObserveFailure(stage, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, stage+":"+reason)
}

type stubStage struct {
	name string
	fn   func(video.Sequence) (video.Sequence, error)
}

func (s stubStage) Name() string { return s.name }

func (s stubStage) Apply(seq video.Sequence) (video.Sequence, error) { return s.fn(seq) }

func noise(rng *rand.Rand, n, w, h int) video.Sequence {
	seq := make(video.Sequence, n)
	for i := range seq {
		f := video.NewFrame(w, h)
		for j := range f.Pix {
			f.Pix[j] = float64(rng.IntN(256))
		}
		seq[i] = f
	}
	return seq
}

// pixelDiffVariance pools every per-sample difference between consecutive
// frames and returns their variance.
func pixelDiffVariance(seq video.Sequence) float64 {
	var diffs []float64
	for i := 1; i < len(seq); i++ {
		for j := range seq[i].Pix {
			diffs = append(diffs, seq[i].Pix[j]-seq[i-1].Pix[j])
		}
	}
	return variance(diffs)
}

func TestStabilizeShapePreservation(t *testing.T) {
	p := NewPipeline(DefaultConfig(), nil)
	rapid.Check(t, func(t *rapid.T) {
		in := drawSequence(t)
		out, err := p.Stabilize(context.Background(), in)
		require.NoError(t, err)
		require.Len(t, out, len(in))
		for i, f := range out {
			assert.Equal(t, in[i].Width, f.Width)
			assert.Equal(t, in[i].Height, f.Height)
			require.NoError(t, f.Validate())
			for _, v := range f.Pix {
				if v < 0 || v > 255 || math.IsNaN(v) {
					t.Fatalf("sample %v out of range in frame %d", v, i)
				}
			}
		}
	})
}

func TestStabilizeInvalidInput(t *testing.T) {
	cases := []struct {
		name  string
		seq   video.Sequence
		cause error
	}{
		{"empty", video.Sequence{}, video.ErrEmptySequence},
		{"nil", nil, video.ErrEmptySequence},
		{"mismatched dimensions", video.Sequence{video.NewFrame(4, 4), video.NewFrame(4, 5)}, video.ErrDimensionMismatch},
		{"short pixel buffer", video.Sequence{{Width: 2, Height: 2, Pix: make([]float64, 5)}}, video.ErrMalformedFrame},
		{"zero width", video.Sequence{{Width: 0, Height: 2}}, video.ErrMalformedFrame},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			obs := &recordingObserver{}
			p := NewPipeline(DefaultConfig(), zaptest.NewLogger(t), WithObserver(obs))

			out, err := p.Stabilize(context.Background(), tc.seq)
			require.Error(t, err)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.ErrorIs(t, err, tc.cause)

			var invalid *InvalidInputError
			assert.True(t, errors.As(err, &invalid))
			assert.Equal(t, []string{"validate:invalid_input"}, obs.failures)
			assert.Empty(t, obs.stages)
		})
	}
}

func TestStabilizeDoesNotMutateInput(t *testing.T) {
	in := noise(rand.New(rand.NewPCG(3, 4)), 5, 6, 6)
	snapshot := in.Clone()

	_, err := Stabilize(in)
	require.NoError(t, err)
	assert.Equal(t, snapshot, in)
}

func TestStabilizeBlackFrame(t *testing.T) {
	in := grays(180, 0, 180, 180)
	out, err := Stabilize(in)
	require.NoError(t, err)
	for _, f := range out {
		for _, v := range f.Pix {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
			assert.GreaterOrEqual(t, v, 0.0)
			assert.LessOrEqual(t, v, 255.0)
		}
	}
}

func TestStabilizeNonFinite(t *testing.T) {
	in := grays(100, 120, 140)
	in[1].Pix[4] = math.NaN()

	obs := &recordingObserver{}
	p := NewPipeline(DefaultConfig(), zaptest.NewLogger(t), WithObserver(obs))
	_, err := p.Stabilize(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNumericDegeneracy)

	var degenerate *NumericDegeneracyError
	require.True(t, errors.As(err, &degenerate))
	assert.Equal(t, "flicker", degenerate.Stage)
	assert.Equal(t, []string{"flicker:non_finite"}, obs.failures)
}

func TestStabilizeReducesNoise(t *testing.T) {
	in := noise(rand.New(rand.NewPCG(42, 7)), 10, 64, 64)
	out, err := Stabilize(in)
	require.NoError(t, err)
	require.Len(t, out, 10)

	before := pixelDiffVariance(in)
	after := pixelDiffVariance(out)
	assert.Less(t, after, before)
	assert.NotEqual(t, in, out)
}

func TestStabilizeSingleFrame(t *testing.T) {
	in := video.Sequence{video.Solid(5, 4, 40, 80, 160)}
	out, err := Stabilize(in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.InDeltaSlice(t, in[0].Pix, out[0].Pix, 1e-3)
}

func TestPipelineObserverOrder(t *testing.T) {
	obs := &recordingObserver{}
	p := NewPipeline(Config{Workers: 2}, zaptest.NewLogger(t), WithObserver(obs))
	assert.Equal(t, []string{"flicker", "tone", "temporal", "dejitter"}, p.Stages())

	_, err := p.Stabilize(context.Background(), grays(10, 20, 30, 40))
	require.NoError(t, err)
	assert.Equal(t, p.Stages(), obs.stages)
	assert.Empty(t, obs.failures)
}

func TestPipelineStageFailures(t *testing.T) {
	boom := errors.New("boom")

	t.Run("stage error is wrapped", func(t *testing.T) {
		obs := &recordingObserver{}
		p := NewPipeline(DefaultConfig(), nil, WithObserver(obs), WithStages(
			stubStage{name: "broken", fn: func(video.Sequence) (video.Sequence, error) { return nil, boom }},
		))
		_, err := p.Stabilize(context.Background(), grays(1, 2))
		require.Error(t, err)
		assert.ErrorIs(t, err, boom)
		assert.Contains(t, err.Error(), "stage broken")
		assert.Equal(t, []string{"broken:error"}, obs.failures)
	})

	t.Run("length change is rejected", func(t *testing.T) {
		p := NewPipeline(DefaultConfig(), nil, WithStages(
			stubStage{name: "dropper", fn: func(seq video.Sequence) (video.Sequence, error) { return seq[:1], nil }},
		))
		_, err := p.Stabilize(context.Background(), grays(1, 2, 3))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "returned 1 frames for 3")
	})

	t.Run("later stages do not run", func(t *testing.T) {
		ran := false
		p := NewPipeline(DefaultConfig(), nil, WithStages(
			stubStage{name: "first", fn: func(video.Sequence) (video.Sequence, error) { return nil, boom }},
			stubStage{name: "second", fn: func(seq video.Sequence) (video.Sequence, error) {
				ran = true
				return seq, nil
			}},
		))
		_, err := p.Stabilize(context.Background(), grays(1))
		require.Error(t, err)
		assert.False(t, ran)
	})
}

func TestTemporalHasNoFeedbackAfterNormalization(t *testing.T) {
	in := column(0, 100, 0, 100, 0)
	p := NewPipeline(DefaultConfig(), nil, WithStages(
		Flicker{Epsilon: DefaultEpsilon},
		Tone{Epsilon: DefaultEpsilon},
		Temporal{},
	))
	once, err := p.Stabilize(context.Background(), in)
	require.NoError(t, err)
	assert.InDelta(t, 16, once[2].Pix[0], 1e-3)

	twice, err := Temporal{}.Apply(once)
	require.NoError(t, err)
	assert.NotEqual(t, once, twice)
}
