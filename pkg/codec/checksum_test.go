package codec

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChecksum(t *testing.T) {
	testCases := []struct {
		name string
		data []byte
		want uint32
	}{
		{"Empty", []byte{}, 0},
		{"Nil", nil, 0},
		{"Single byte", []byte{0x2A}, 42},
		{"Simple sum", []byte{1, 2, 3}, 6},
		{"Max bytes", []byte{0xFF, 0xFF}, 510},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Checksum(tc.data))
		})
	}
}

func TestChecksumIsDeterministic(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	assert.Equal(t, Checksum(data), Checksum(data), "Equal inputs must produce equal checksums")
}

func TestVerifyChecksum(t *testing.T) {
	data := []byte("payload under test")
	sum := Checksum(data)

	assert.True(t, VerifyChecksum(data, sum))
	assert.False(t, VerifyChecksum(data, sum+1))
}

// An additive sum changes whenever exactly one byte changes, so any
// single-byte mutation must be detected.
func TestVerifyChecksum_DetectsSingleByteMutation(t *testing.T) {
	data := make([]byte, 512)
	_, err := rand.Read(data)
	require.NoError(t, err)
	sum := Checksum(data)

	for i := 0; i < len(data); i += 17 {
		mutated := make([]byte, len(data))
		copy(mutated, data)
		mutated[i] ^= 0x01

		assert.False(t, VerifyChecksum(mutated, sum), "Mutation at index %d went undetected", i)
	}
}
