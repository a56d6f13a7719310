package util

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TokenKeySize is the AES-256 key length in bytes.
const TokenKeySize = 32

var (
	ErrBadDecrypt        = errors.New("bad decrypt")
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// Envelope is the hex encoded result of an encryption.
type Envelope struct {
	IV         string
	Ciphertext string
}

// TokenCipher encrypts bearer tokens with AES-256-CBC. The key is fixed for
// the lifetime of the value; every Encrypt call draws a fresh IV.
type TokenCipher struct {
	block cipher.Block
}

func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != TokenKeySize {
		return nil, fmt.Errorf("token cipher key must be %d bytes, got %d", TokenKeySize, len(key))
	}

	block, err := aes.NewCipher(key)

	if err != nil {
		return nil, err
	}

	return &TokenCipher{block: block}, nil
}

// NewRandomTokenCipher creates a cipher with a key that lives only as long
// as the process. Envelopes sealed by a previous process cannot be opened.
func NewRandomTokenCipher() (*TokenCipher, error) {
	key := make([]byte, TokenKeySize)

	if _, err := rand.Read(key); err != nil {
		return nil, err
	}

	return NewTokenCipher(key)
}

// NewTokenCipherFromHex builds a cipher from a hex key, or a random one when
// hexKey is empty.
func NewTokenCipherFromHex(hexKey string) (*TokenCipher, error) {
	if hexKey == "" {
		return NewRandomTokenCipher()
	}

	key, err := hex.DecodeString(hexKey)

	if err != nil {
		return nil, fmt.Errorf("decode token cipher key: %w", err)
	}

	return NewTokenCipher(key)
}

func (tc *TokenCipher) Encrypt(plaintext string) (Envelope, error) {
	iv := make([]byte, aes.BlockSize)

	if _, err := rand.Read(iv); err != nil {
		return Envelope{}, err
	}

	padded := pkcs7Pad([]byte(plaintext), aes.BlockSize)
	ciphertext := make([]byte, len(padded))

	cipher.NewCBCEncrypter(tc.block, iv).CryptBlocks(ciphertext, padded)

	return Envelope{
		IV:         hex.EncodeToString(iv),
		Ciphertext: hex.EncodeToString(ciphertext),
	}, nil
}

// Decrypt returns ErrBadDecrypt for any malformed or tampered input.
func (tc *TokenCipher) Decrypt(envelope Envelope) (string, error) {
	iv, err := hex.DecodeString(envelope.IV)

	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrBadDecrypt
	}

	ciphertext, err := hex.DecodeString(envelope.Ciphertext)

	if err != nil || len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return "", ErrBadDecrypt
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(tc.block, iv).CryptBlocks(plaintext, ciphertext)

	unpadded, ok := pkcs7Unpad(plaintext, aes.BlockSize)

	if !ok {
		return "", ErrBadDecrypt
	}

	return string(unpadded), nil
}

// Seal encrypts plaintext into the wire form "<ciphertext><sep><iv>".
func (tc *TokenCipher) Seal(plaintext string, separator string) (string, error) {
	envelope, err := tc.Encrypt(plaintext)

	if err != nil {
		return "", err
	}

	return envelope.Ciphertext + separator + envelope.IV, nil
}

// Open reverses Seal. A value missing either part yields ErrMalformedEnvelope,
// anything that fails to decrypt yields ErrBadDecrypt.
func (tc *TokenCipher) Open(value string, separator string) (string, error) {
	envelope, err := SplitEnvelope(value, separator)

	if err != nil {
		return "", err
	}

	return tc.Decrypt(envelope)
}

func SplitEnvelope(value string, separator string) (Envelope, error) {
	if separator == "" {
		return Envelope{}, ErrMalformedEnvelope
	}

	ciphertext, iv, found := strings.Cut(value, separator)

	if !found || ciphertext == "" || iv == "" {
		return Envelope{}, ErrMalformedEnvelope
	}

	return Envelope{IV: iv, Ciphertext: ciphertext}, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padding := blockSize - len(data)%blockSize
	return append(data, bytes.Repeat([]byte{byte(padding)}, padding)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, bool) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, false
	}

	padding := int(data[len(data)-1])

	if padding == 0 || padding > blockSize {
		return nil, false
	}

	for _, b := range data[len(data)-padding:] {
		if int(b) != padding {
			return nil, false
		}
	}

	return data[:len(data)-padding], true
}
