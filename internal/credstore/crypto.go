package credstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// defaultKDFIterations is the PBKDF2-SHA256 iteration count.
	defaultKDFIterations = 120000

	saltBytes = 16
	keyBytes  = 32
)

// cryptor performs the encrypt/decrypt and checksum primitives for
// credential records. One derived key per credential per write; the
// master key itself never touches a record.
type cryptor struct {
	masterKey  []byte
	iterations int
}

// newCryptor creates a cryptor for the given master key.
func newCryptor(masterKey []byte, iterations int) *cryptor {
	if iterations <= 0 {
		iterations = defaultKDFIterations
	}
	return &cryptor{
		masterKey:  masterKey,
		iterations: iterations,
	}
}

// encrypt seals the plaintext with AES-256-GCM under a freshly derived
// key. It returns the ciphertext along with the salt and nonce needed
// for decryption.
func (c *cryptor) encrypt(plaintext []byte) (ciphertext, salt, nonce []byte, err error) {
	salt = make([]byte, saltBytes)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return nil, nil, nil, err
	}

	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext = aead.Seal(nil, nonce, plaintext, nil)
	return ciphertext, salt, nonce, nil
}

// decrypt opens the ciphertext with the key derived from the stored
// salt.
func (c *cryptor) decrypt(ciphertext, salt, nonce []byte) ([]byte, error) {
	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential: %w", err)
	}
	return plaintext, nil
}

// aead builds the AES-256-GCM cipher for the key derived from salt.
func (c *cryptor) aead(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(c.masterKey, salt, c.iterations, keyBytes, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// checksum computes the hex SHA-256 digest of the plaintext.
func checksum(plaintext []byte) string {
	sum := sha256.Sum256(plaintext)
	return hex.EncodeToString(sum[:])
}

// checksumMatches compares checksums in constant time.
func checksumMatches(expected, actual string) bool {
	return subtle.ConstantTimeCompare([]byte(expected), []byte(actual)) == 1
}
