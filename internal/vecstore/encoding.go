package vecstore

import (
	"encoding/binary"
	"math"

	"github.com/rotisserie/eris"
)

// encodeFloat32s serializes a vector to little-endian bytes for BLOB/bytea
// storage.
func encodeFloat32s(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeFloat32s deserializes a little-endian BLOB back into a vector.
func decodeFloat32s(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, eris.Errorf("vecstore: embedding blob length %d not a multiple of 4", len(blob))
	}
	v := make([]float32, len(blob)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return v, nil
}

// cosine computes cosine similarity between two vectors. Mismatched lengths
// or zero-norm vectors score 0.
func cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// insertTopK inserts a candidate into a descending score-ordered slice,
// keeping at most k entries. Fine for the small k used in retrieval.
func insertTopK(results []ScoredChunk, candidate ScoredChunk, k int) []ScoredChunk {
	pos := len(results)
	for pos > 0 && results[pos-1].Similarity < candidate.Similarity {
		pos--
	}
	if pos >= k {
		return results
	}
	results = append(results, ScoredChunk{})
	copy(results[pos+1:], results[pos:])
	results[pos] = candidate
	if len(results) > k {
		results = results[:k]
	}
	return results
}
