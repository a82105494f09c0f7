package postgres

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

const (
	// blobVersion is the version byte for the encrypted blob format.
	// This allows future format changes while maintaining backward compatibility.
	blobVersion = 0x01

	// nonceSize is the AES-GCM nonce size (12 bytes is standard)
	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when the encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is not supported.
	ErrUnsupportedVersion = errors.New("unsupported blob version")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt field value")
)

// DefaultContactColumns are the field names encrypted at rest. The engine
// never inspects these values after mapping, so encryption stays an opaque
// store concern.
func DefaultContactColumns() map[string]bool {
	return map[string]bool{
		"email": true,
		"phone": true,
	}
}

// FieldEncryptor encrypts designated contact fields with AES-256-GCM before
// they land in JSONB. The stored format per value is
// base64(version(1) || nonce(12) || ciphertext).
type FieldEncryptor struct {
	gcm     cipher.AEAD
	columns map[string]bool
}

// NewFieldEncryptor creates an encryptor with the given 32-byte key.
// A nil columns map uses DefaultContactColumns.
func NewFieldEncryptor(key []byte, columns map[string]bool) (*FieldEncryptor, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}
	if columns == nil {
		columns = DefaultContactColumns()
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &FieldEncryptor{gcm: gcm, columns: columns}, nil
}

// EncryptFields returns a copy of fields with contact columns encrypted.
// Non-contact columns pass through untouched.
func (e *FieldEncryptor) EncryptFields(fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if !e.columns[k] {
			out[k] = v
			continue
		}
		blob, err := e.encrypt(v)
		if err != nil {
			return nil, fmt.Errorf("encrypt field %s: %w", k, err)
		}
		out[k] = blob
	}
	return out, nil
}

// DecryptFields reverses EncryptFields.
func (e *FieldEncryptor) DecryptFields(fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if !e.columns[k] {
			out[k] = v
			continue
		}
		plain, err := e.decrypt(v)
		if err != nil {
			return nil, fmt.Errorf("decrypt field %s: %w", k, err)
		}
		out[k] = plain
	}
	return out, nil
}

func (e *FieldEncryptor) encrypt(value string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := e.gcm.Seal(nil, nonce, []byte(value), nil)

	// Build blob: version || nonce || ciphertext
	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = blobVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return base64.StdEncoding.EncodeToString(blob), nil
}

func (e *FieldEncryptor) decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}

	minSize := 1 + nonceSize + e.gcm.Overhead()
	if len(blob) < minSize {
		return "", ErrInvalidBlobSize
	}

	if blob[0] != blobVersion {
		return "", fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	ciphertext := blob[1+nonceSize:]

	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
