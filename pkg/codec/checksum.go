package codec

// Checksum returns the additive 32-bit checksum of b: the sum of all byte
// values, wrapping on overflow. It detects transmission corruption (any
// single-byte change shifts the sum) but is not a security boundary.
func Checksum(b []byte) uint32 {
	var sum uint32
	for _, c := range b {
		sum += uint32(c)
	}
	return sum
}

// VerifyChecksum reports whether b sums to expected.
func VerifyChecksum(b []byte, expected uint32) bool {
	return Checksum(b) == expected
}
