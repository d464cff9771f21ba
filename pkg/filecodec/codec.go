// Package filecodec encrypts uploaded files at rest and restores them on demand.
//
// Encrypted files carry their own parameters in a fixed header so that nothing about the
// ciphertext depends on the file name:
//
//	"AEV1" | salt (16 bytes) | nonce (12 bytes) | AES-256-GCM ciphertext + tag
package filecodec

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"golang.org/x/crypto/scrypt"
)

var (
	// ErrIO indicates a source file could not be read or a target could not be written.
	ErrIO = errors.New("file io failure")
	// ErrCryptoConfig indicates the server secret is missing.
	ErrCryptoConfig = errors.New("encryption secret is not configured")
	// ErrDecryption indicates the ciphertext is corrupt or was sealed with another key.
	ErrDecryption = errors.New("unable to decrypt file")
)

// Extension is appended to every encrypted file name.
const Extension = ".enc"

const (
	magic     = "AEV1"
	saltSize  = 16
	nonceSize = 12
	keySize   = 32
)

// KDFParams tunes the scrypt cost. The zero value selects DefaultKDF.
type KDFParams struct {
	N int
	R int
	P int
}

// DefaultKDF is used whenever a Codec is built without explicit parameters.
var DefaultKDF = KDFParams{N: 1 << 15, R: 8, P: 1}

// Codec seals and opens files using a key derived from a server held secret.
type Codec struct {
	secret  []byte
	kdf     KDFParams
	tempDir string
}

// Option customises a Codec.
type Option func(*Codec)

// WithKDF overrides the scrypt cost parameters.
func WithKDF(params KDFParams) Option {
	return func(c *Codec) {
		if params.N > 1 && params.R > 0 && params.P > 0 {
			c.kdf = params
		}
	}
}

// WithTempDir sets the directory decrypted scratch files are written to.
func WithTempDir(dir string) Option {
	return func(c *Codec) {
		c.tempDir = dir
	}
}

// New builds a codec. An empty secret is reported by every operation as ErrCryptoConfig.
func New(secret string, opts ...Option) *Codec {
	codec := &Codec{
		secret: []byte(secret),
		kdf:    DefaultKDF,
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec
}

// Configured reports whether a secret is available.
func (c *Codec) Configured() bool {
	return c != nil && len(c.secret) > 0
}

// Encrypt seals plainPath into a new "<uuid>.enc" file next to it and removes the
// plaintext. The ciphertext is written to a temp file and renamed into place, so a
// failure never leaves a partial .enc file behind and never loses the plaintext.
func (c *Codec) Encrypt(plainPath string) (string, error) {
	return c.EncryptTo(plainPath, filepath.Dir(plainPath))
}

// EncryptTo behaves like Encrypt but places the encrypted file in dir.
func (c *Codec) EncryptTo(plainPath, dir string) (string, error) {
	if !c.Configured() {
		return "", ErrCryptoConfig
	}

	plaintext, err := os.ReadFile(plainPath)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", ErrIO, filepath.Base(plainPath), err)
	}

	sealed, err := c.EncryptBytes(plaintext)
	if err != nil {
		return "", err
	}

	target := filepath.Join(dir, uuid.NewString()+Extension)
	if err := writeAtomic(target, sealed); err != nil {
		return "", err
	}

	if err := os.Remove(plainPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: remove plaintext: %w", ErrIO, err)
	}

	return target, nil
}

// EncryptBytes seals plaintext with a fresh salt and nonce.
func (c *Codec) EncryptBytes(plaintext []byte) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrCryptoConfig
	}

	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(magic)+saltSize+nonceSize+len(plaintext)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	header := append([]byte(nil), out...)

	return aead.Seal(out, nonce, plaintext, header), nil
}

// Decrypt opens encryptedPath into a scratch file. The returned release function removes
// the scratch file and must be called once the caller is done, including on error paths
// after a successful return.
func (c *Codec) Decrypt(encryptedPath string) (string, func(), error) {
	plaintext, err := c.DecryptFile(encryptedPath)
	if err != nil {
		return "", nil, err
	}

	scratch, err := os.CreateTemp(c.tempDir, "autoeval-plain-*")
	if err != nil {
		return "", nil, fmt.Errorf("%w: create scratch file: %w", ErrIO, err)
	}
	path := scratch.Name()
	release := func() { _ = os.Remove(path) }

	if _, err := scratch.Write(plaintext); err != nil {
		_ = scratch.Close()
		release()
		return "", nil, fmt.Errorf("%w: write scratch file: %w", ErrIO, err)
	}
	if err := scratch.Close(); err != nil {
		release()
		return "", nil, fmt.Errorf("%w: close scratch file: %w", ErrIO, err)
	}

	return path, release, nil
}

// DecryptFile reads and opens encryptedPath in memory.
func (c *Codec) DecryptFile(encryptedPath string) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrCryptoConfig
	}

	sealed, err := os.ReadFile(encryptedPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrIO, filepath.Base(encryptedPath), err)
	}

	return c.DecryptBytes(sealed)
}

// DecryptBytes opens a buffer produced by EncryptBytes.
func (c *Codec) DecryptBytes(sealed []byte) ([]byte, error) {
	if !c.Configured() {
		return nil, ErrCryptoConfig
	}

	headerLen := len(magic) + saltSize + nonceSize
	if len(sealed) < headerLen || !bytes.Equal(sealed[:len(magic)], []byte(magic)) {
		return nil, fmt.Errorf("%w: missing header", ErrDecryption)
	}

	salt := sealed[len(magic) : len(magic)+saltSize]
	nonce := sealed[len(magic)+saltSize : headerLen]

	aead, err := c.aead(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, sealed[headerLen:], sealed[:headerLen])
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecryption, err)
	}

	return plaintext, nil
}

func (c *Codec) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.secret, salt, c.kdf.N, c.kdf.R, c.kdf.P, keySize)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	return cipher.NewGCMWithNonceSize(block, nonceSize)
}

func writeAtomic(target string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".autoeval-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", ErrIO, err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("%w: write ciphertext: %w", ErrIO, err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("%w: sync ciphertext: %w", ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: close ciphertext: %w", ErrIO, err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: rename ciphertext: %w", ErrIO, err)
	}

	return nil
}
