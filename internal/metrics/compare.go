package metrics

// Comparison summarizes how a sequence changed between two reports.
// Deltas are after minus before, so negative means more stable.
type Comparison struct {
	LuminanceVarDelta float64 `json:"luminance_var_delta"`
	ColorVarDelta     float64 `json:"color_var_delta"`
	PixelDiffVarDelta float64 `json:"pixel_diff_var_delta"`
	HueDriftDelta     float64 `json:"hue_drift_delta"`
	FlickerReduced    bool    `json:"flicker_reduced"`
	ToneStabilized    bool    `json:"tone_stabilized"`
	JitterReduced     bool    `json:"jitter_reduced"`
	Stable            bool    `json:"stable"`
}

// Compare reports which measurements strictly improved from before to after.
func Compare(before, after Report) Comparison {
	c := Comparison{
		LuminanceVarDelta: after.LuminanceVar - before.LuminanceVar,
		ColorVarDelta:     after.ColorVar - before.ColorVar,
		PixelDiffVarDelta: after.PixelDiffVar - before.PixelDiffVar,
		HueDriftDelta:     after.HueDrift - before.HueDrift,
		FlickerReduced:    after.LuminanceVar < before.LuminanceVar,
		ToneStabilized:    after.ColorVar < before.ColorVar,
		JitterReduced:     after.PixelDiffVar < before.PixelDiffVar,
	}
	c.Stable = c.FlickerReduced && c.ToneStabilized && c.JitterReduced
	return c
}
