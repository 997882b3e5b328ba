package store

import (
	"encoding/binary"
	"math"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/ncruces"
	"github.com/google/uuid"
)

func NewID() string {
	return uuid.New().String()
}

func serializeEmbedding(embedding []float32) ([]byte, error) {
	if len(embedding) == 0 {
		return nil, nil
	}
	return sqlite_vec.SerializeFloat32(embedding)
}

// deserializeEmbedding reverses SerializeFloat32's little-endian float32
// layout. A malformed blob yields nil, which callers treat as "embedding not
// computed yet".
func deserializeEmbedding(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}

	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vec[i] = math.Float32frombits(bits)
	}
	return vec
}
