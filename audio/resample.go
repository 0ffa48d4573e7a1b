package audio

import (
	"encoding/binary"
	"math"
)

// Resample converts mono float samples from sourceRate to targetRate using
// linear interpolation and returns them as little-endian signed 16-bit PCM.
// A zero rate yields an empty result. Equal rates quantize directly.
// Resample keeps no state between calls.
func Resample(samples []float32, sourceRate, targetRate uint32) []byte {
	if sourceRate == 0 || targetRate == 0 {
		return []byte{}
	}

	if sourceRate == targetRate {
		out := make([]byte, len(samples)*2)
		for i, s := range samples {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(quantize(s)))
		}
		return out
	}

	ratio := float64(sourceRate) / float64(targetRate)
	outLen := int(math.Ceil(float64(len(samples)) / ratio))
	out := make([]byte, outLen*2)

	for n := 0; n < outLen; n++ {
		pos := float64(n) * ratio
		idx := int(math.Floor(pos))
		frac := float32(pos - float64(idx))

		s0 := sampleAt(samples, idx)
		s1 := s0
		if idx+1 < len(samples) {
			s1 = samples[idx+1]
		}
		interp := s0*(1-frac) + s1*frac

		binary.LittleEndian.PutUint16(out[n*2:], uint16(quantize(interp)))
	}

	return out
}

// Silence returns zeroed PCM of the same length as pcm.
func Silence(pcm []byte) []byte {
	return make([]byte, len(pcm))
}

func sampleAt(samples []float32, idx int) float32 {
	if len(samples) == 0 {
		return 0
	}
	if idx >= len(samples) {
		return samples[len(samples)-1]
	}
	return samples[idx]
}

// quantize clamps to [-1, 1] and scales by math.MaxInt16, truncating toward zero.
func quantize(s float32) int16 {
	switch {
	case math.IsNaN(float64(s)):
		s = 0
	case s > 1:
		s = 1
	case s < -1:
		s = -1
	}
	return int16(s * math.MaxInt16)
}
