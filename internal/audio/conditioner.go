package audio

import "math"

// ConditionerParams tunes the per-block signal conditioning stages.
type ConditionerParams struct {
	Enabled       bool
	NoiseGateRMS  float64 // below this the block is silenced
	SoftGateRMS   float64 // below this the block is attenuated
	HighPassCoeff float64 // first-order high-pass coefficient
	GainTarget    float64 // desired peak amplitude for quiet speech
	MaxGain       float64 // upper bound on normalization gain
	MinBoost      float64 // gains below this are not worth applying
}

// Conditioner applies a noise gate, high-pass filter, soft attenuation,
// gain normalization and clip protection to each block, in that order. The
// filter memory persists across blocks within a recording session; call
// Reset when a new session starts.
type Conditioner struct {
	params  ConditionerParams
	prevIn  float64
	prevOut float64
}

func NewConditioner(params ConditionerParams) *Conditioner {
	return &Conditioner{params: params}
}

// Reset clears the high-pass filter memory.
func (c *Conditioner) Reset() {
	c.prevIn = 0
	c.prevOut = 0
}

// Process conditions the block in place and returns it. With conditioning
// disabled the block passes through untouched.
func (c *Conditioner) Process(block Block) Block {
	if !c.params.Enabled || len(block.Samples) == 0 {
		return block
	}

	samples := block.Samples
	rms := blockRMS(samples)

	if rms < c.params.NoiseGateRMS {
		for i := range samples {
			samples[i] = 0
		}
		return block
	}

	c.highPass(samples)

	if rms < c.params.SoftGateRMS {
		scale := rms / c.params.SoftGateRMS
		for i := range samples {
			samples[i] = clampInt16(float64(samples[i]) * scale)
		}
	}

	c.normalize(samples)

	for i := range samples {
		samples[i] = clampInt16(float64(samples[i]))
	}
	return block
}

func (c *Conditioner) highPass(samples []int16) {
	a := c.params.HighPassCoeff
	for i := range samples {
		in := float64(samples[i])
		out := a * (c.prevOut + in - c.prevIn)
		c.prevIn = in
		c.prevOut = out
		samples[i] = clampInt16(out)
	}
}

func (c *Conditioner) normalize(samples []int16) {
	var peak float64
	for _, s := range samples {
		if v := math.Abs(float64(s)); v > peak {
			peak = v
		}
	}
	if peak == 0 || peak >= c.params.GainTarget {
		return
	}
	gain := c.params.GainTarget / peak
	if gain > c.params.MaxGain {
		gain = c.params.MaxGain
	}
	if gain < c.params.MinBoost {
		return
	}
	for i := range samples {
		samples[i] = clampInt16(float64(samples[i]) * gain)
	}
}

func blockRMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		v := float64(s)
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func clampInt16(v float64) int16 {
	if v > 32767 {
		return 32767
	}
	if v < -32767 {
		return -32767
	}
	return int16(v)
}
