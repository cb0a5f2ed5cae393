package db

import (
	"encoding/binary"
	"math"
)

// EncodeVector packs a float32 vector as little-endian FLOAT32 bytes, the
// layout FT indexes expect in hash fields and KNN query params.
func EncodeVector(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// DecodeVector is the inverse of EncodeVector. Trailing bytes that do not
// form a full float are ignored.
func DecodeVector(s string) []float32 {
	out := make([]float32, len(s)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32([]byte(s[i*4 : i*4+4])))
	}
	return out
}
