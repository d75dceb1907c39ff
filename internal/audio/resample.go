package audio

import "math"

// Resample converts samples from fromRate to toRate using linear
// interpolation. When the rates match the input is returned as-is. For N
// input samples the output holds round(N*toRate/fromRate) samples, output
// sample i interpolated at input position i*fromRate/toRate.
func Resample(samples []int16, fromRate, toRate int) []int16 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Round(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]int16, outLen)

	for i := 0; i < outLen; i++ {
		pos := float64(i) * ratio
		idx := int(pos)
		if idx >= len(samples)-1 {
			out[i] = samples[len(samples)-1]
			continue
		}
		frac := pos - float64(idx)
		a := float64(samples[idx])
		b := float64(samples[idx+1])
		out[i] = int16(a + (b-a)*frac)
	}
	return out
}
