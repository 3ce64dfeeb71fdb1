package signal

import (
	"math"

	"github.com/viterin/vek/vek32"
)

// Gain constants.
const (
	GainZero  float32 = 0
	GainUnity float32 = 1
)

// denormal is added to samples to keep the FPU out of denormal mode.
const denormal float32 = 1e-18

// ApplyGain scales samples by gain.
func ApplyGain(samples []Sample, gain float32) {
	switch {
	case len(samples) == 0 || gain == GainUnity:
		return
	case gain == GainZero:
		clear(samples)
	default:
		vek32.MulNumber_Inplace(samples, gain)
	}
}

// ApplyRamp scales samples by a linear ramp from initial to target gain.
// The last sample is scaled exactly by target.
func ApplyRamp(samples []Sample, initial, target float32) {
	n := len(samples)
	if n == 0 {
		return
	}
	delta := (target - initial) / float32(n)
	for i := 0; i < n-1; i++ {
		samples[i] *= initial + delta*float32(i+1)
	}
	samples[n-1] *= target
}

// ApplyGains scales every sample by matching gain value.
func ApplyGains(samples []Sample, gains []float32) {
	n := min(len(samples), len(gains))
	if n == 0 {
		return
	}
	vek32.Mul_Inplace(samples[:n], gains[:n])
}

// Mix adds src to dst.
func Mix(dst, src []Sample) {
	n := min(len(dst), len(src))
	if n == 0 {
		return
	}
	vek32.Add_Inplace(dst[:n], src[:n])
}

// MixWithGain adds src scaled by gain to dst.
func MixWithGain(dst, src []Sample, gain float32) {
	n := min(len(dst), len(src))
	switch {
	case n == 0 || gain == GainZero:
		return
	case gain == GainUnity:
		vek32.Add_Inplace(dst[:n], src[:n])
	default:
		for i := 0; i < n; i++ {
			dst[i] += src[i] * gain
		}
	}
}

// Peak returns the maximum absolute sample value, but not less than
// current.
func Peak(samples []Sample, current float32) float32 {
	if len(samples) == 0 {
		return current
	}
	hi := vek32.Max(samples)
	lo := vek32.Min(samples)
	if -lo > hi {
		hi = -lo
	}
	if hi > current {
		return hi
	}
	return current
}

// Invert flips the polarity of samples.
func Invert(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	vek32.MulNumber_Inplace(samples, -1)
}

// Denormalize adds an inaudible offset to avoid denormal arithmetic.
func Denormalize(samples []Sample) {
	if len(samples) == 0 {
		return
	}
	vek32.AddNumber_Inplace(samples, denormal)
}

// DBToCoefficient converts decibels to a gain coefficient.
func DBToCoefficient(db float64) float32 {
	if db <= -192 {
		return 0
	}
	return float32(math.Pow(10, db/20))
}

// CoefficientToDB converts gain coefficient to decibels.
func CoefficientToDB(gain float32) float64 {
	if gain <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(float64(gain))
}

// MixWithRamp adds src to dst scaled by a linear ramp from initial to
// target gain. The last sample is scaled exactly by target.
func MixWithRamp(dst, src []Sample, initial, target float32) {
	n := min(len(dst), len(src))
	if n == 0 {
		return
	}
	if initial == target {
		MixWithGain(dst, src, target)
		return
	}
	delta := (target - initial) / float32(n)
	for i := 0; i < n-1; i++ {
		dst[i] += src[i] * (initial + delta*float32(i+1))
	}
	dst[n-1] += src[n-1] * target
}
