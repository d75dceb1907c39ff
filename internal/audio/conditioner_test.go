package audio

import (
	"testing"
	"time"
)

func testParams() ConditionerParams {
	return ConditionerParams{
		Enabled:       true,
		NoiseGateRMS:  200,
		SoftGateRMS:   1000,
		HighPassCoeff: 0.97,
		GainTarget:    16000,
		MaxGain:       10,
		MinBoost:      1.5,
	}
}

func block(samples []int16) Block {
	return Block{Samples: samples, SampleRate: 16000, Timestamp: time.Now()}
}

func TestDisabledConditionerPassesThrough(t *testing.T) {
	params := testParams()
	params.Enabled = false
	c := NewConditioner(params)

	in := []int16{50, -50, 12000, -32767}
	want := append([]int16(nil), in...)
	out := c.Process(block(in))
	for i := range want {
		if out.Samples[i] != want[i] {
			t.Fatalf("sample %d changed with conditioner disabled: %d != %d", i, out.Samples[i], want[i])
		}
	}
}

func TestNoiseGateSilencesQuietBlock(t *testing.T) {
	c := NewConditioner(testParams())

	in := make([]int16, 256)
	for i := range in {
		in[i] = int16((i%3 - 1) * 50) // RMS well under 200
	}
	out := c.Process(block(in))
	for i, s := range out.Samples {
		if s != 0 {
			t.Fatalf("sample %d not zeroed: %d", i, s)
		}
	}
}

func TestLoudBlockPassesNoiseGate(t *testing.T) {
	c := NewConditioner(testParams())

	in := make([]int16, 256)
	for i := range in {
		if i%2 == 0 {
			in[i] = 8000
		} else {
			in[i] = -8000
		}
	}
	out := c.Process(block(in))
	var nonZero bool
	for _, s := range out.Samples {
		if s != 0 {
			nonZero = true
			break
		}
	}
	if !nonZero {
		t.Fatal("loud block was silenced")
	}
}

func TestClipProtectionBoundsOutput(t *testing.T) {
	params := testParams()
	params.MaxGain = 100
	c := NewConditioner(params)

	in := make([]int16, 512)
	for i := range in {
		if i%2 == 0 {
			in[i] = 30000
		} else {
			in[i] = -30000
		}
	}
	out := c.Process(block(in))
	for i, s := range out.Samples {
		if s > 32767 || s < -32767 {
			t.Fatalf("sample %d out of range: %d", i, s)
		}
	}
}

func TestFilterMemoryReset(t *testing.T) {
	c := NewConditioner(testParams())

	loud := func() []int16 {
		in := make([]int16, 128)
		for i := range in {
			if i%2 == 0 {
				in[i] = 10000
			} else {
				in[i] = -10000
			}
		}
		return in
	}

	first := c.Process(block(loud()))
	got1 := append([]int16(nil), first.Samples...)

	c.Process(block(loud()))
	c.Reset()

	again := c.Process(block(loud()))
	for i := range got1 {
		if again.Samples[i] != got1[i] {
			t.Fatalf("sample %d differs after reset: %d != %d", i, again.Samples[i], got1[i])
		}
	}
}
