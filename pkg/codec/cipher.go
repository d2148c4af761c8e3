package codec

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
)

// Cipher transforms payload bytes before they cross the wire. Decrypt must
// invert Encrypt for every byte sequence, including the empty one; the
// transfer protocol is agnostic to which implementation is in use as long
// as both peers agree.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// DefaultXORKey is the single-byte key used when no key material is supplied.
const DefaultXORKey byte = 0xAA

// XORCipher is a fixed single-byte XOR transform. It is trivially
// reversible and provides obfuscation only, not confidentiality.
type XORCipher struct {
	Key byte
}

// NewXORCipher returns an XORCipher using DefaultXORKey.
func NewXORCipher() *XORCipher {
	return &XORCipher{Key: DefaultXORKey}
}

func (c *XORCipher) Encrypt(plaintext []byte) ([]byte, error) {
	out := make([]byte, len(plaintext))
	for i, b := range plaintext {
		out[i] = b ^ c.Key
	}
	return out, nil
}

// Decrypt applies the same transform as Encrypt; XOR is its own inverse.
func (c *XORCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return c.Encrypt(ciphertext)
}

// AESCipher encrypts payloads with AES in CTR mode using a shared key and
// initialization vector. Each payload is transformed with a fresh keystream
// derived from the same IV, so both directions stay symmetric: the same
// call sequence on either peer produces the inverse transform.
type AESCipher struct {
	block cipher.Block
	iv    []byte
}

// NewAESCipher builds an AESCipher from key material. The key must be 16,
// 24 or 32 bytes and the IV exactly one AES block.
func NewAESCipher(key, iv []byte) (*AESCipher, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AES cipher: %w", err)
	}
	if len(iv) != aes.BlockSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", aes.BlockSize, len(iv))
	}
	c := &AESCipher{block: block, iv: make([]byte, aes.BlockSize)}
	copy(c.iv, iv)
	return c, nil
}

func (c *AESCipher) transform(in []byte) []byte {
	out := make([]byte, len(in))
	stream := cipher.NewCTR(c.block, c.iv)
	stream.XORKeyStream(out, in)
	return out
}

func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	return c.transform(plaintext), nil
}

func (c *AESCipher) Decrypt(ciphertext []byte) ([]byte, error) {
	return c.transform(ciphertext), nil
}

// GenerateKeyMaterial produces a random 32-byte AES key and a 16-byte IV
// suitable for NewAESCipher.
func GenerateKeyMaterial() (key, iv []byte, err error) {
	key = make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, nil, fmt.Errorf("failed to generate key: %w", err)
	}
	iv = make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, nil, fmt.Errorf("failed to generate IV: %w", err)
	}
	return key, iv, nil
}
