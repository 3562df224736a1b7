package embedder

import "math"

// QuantizedVector is a b-bit uniform scalar quantization of a float vector.
// Values are stored as level indexes in [0, 2^bits-1] over [Min, Max].
type QuantizedVector struct {
	Levels []uint16
	Min    float32
	Max    float32
	Bits   int
}

// Quantize compresses vector to bits of precision per component. Bits is
// clamped to [1, 16]. A constant vector quantizes to level zero everywhere
// and dequantizes back to the constant exactly.
func Quantize(vector []float32, bits int) QuantizedVector {
	if bits < 1 {
		bits = 1
	}
	if bits > 16 {
		bits = 16
	}

	q := QuantizedVector{
		Levels: make([]uint16, len(vector)),
		Bits:   bits,
	}
	if len(vector) == 0 {
		return q
	}

	minV, maxV := vector[0], vector[0]
	for _, v := range vector[1:] {
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	q.Min, q.Max = minV, maxV

	if maxV == minV {
		return q
	}

	levels := float64(uint32(1)<<uint(bits)) - 1
	scale := levels / float64(maxV-minV)
	for i, v := range vector {
		q.Levels[i] = uint16(math.Round(float64(v-minV) * scale))
	}
	return q
}

// Dequantize reconstructs an approximate float vector. The per-component
// error is bounded by half a quantization step, (Max-Min) / (2*(2^Bits-1)).
func Dequantize(q QuantizedVector) []float32 {
	vector := make([]float32, len(q.Levels))
	if len(q.Levels) == 0 {
		return vector
	}
	if q.Max == q.Min {
		for i := range vector {
			vector[i] = q.Min
		}
		return vector
	}

	levels := float64(uint32(1)<<uint(q.Bits)) - 1
	step := float64(q.Max-q.Min) / levels
	for i, l := range q.Levels {
		vector[i] = q.Min + float32(float64(l)*step)
	}
	return vector
}
