// Package cipher seals application payloads with an authenticated cipher.
//
// Payloads are JSON-native values (nil, bool, string, finite float64,
// []any and map[string]any, nested freely). They are serialized with
// encoding/json, which writes object keys in sorted order, and sealed with
// XChaCha20-Poly1305 under a fresh random nonce per call. The 16-byte
// Poly1305 tag is stored apart from the ciphertext.
//
// A Codec holds only its key material and is safe for concurrent use.
package cipher

import (
	stdcipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"unicode/utf8"

	"github.com/dalemusser/bourses/internal/domain/models"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// KeySize is the length of a raw codec key.
const KeySize = chacha20poly1305.KeySize

var (
	// ErrEncoding means the value cannot be represented as a payload.
	ErrEncoding = errors.New("payload encoding failed")

	// ErrIntegrity means the payload was modified or sealed under another key.
	ErrIntegrity = errors.New("payload integrity check failed")

	// ErrDecoding means the payload is malformed or its plaintext is not valid JSON.
	ErrDecoding = errors.New("payload decoding failed")
)

// hkdf parameters; changing either invalidates every stored payload.
var (
	kdfSalt = []byte("bourses/payload")
	kdfInfo = []byte("xchacha20poly1305 v1")
)

// Codec encodes and decodes application payloads under a single key.
type Codec struct {
	aead stdcipher.AEAD
}

// New returns a Codec for a raw KeySize-byte key.
func New(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("cipher: key must be %d bytes, got %d", KeySize, len(key))
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// NewFromSecret derives the key from a configured secret and returns a Codec.
func NewFromSecret(secret string) (*Codec, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// DeriveKey stretches secret into a KeySize-byte key with HKDF-SHA256.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("cipher: empty secret")
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(secret), kdfSalt, kdfInfo)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("cipher: derive key: %w", err)
	}
	return key, nil
}

// Encode serializes v and seals it under a fresh nonce.
func (c *Codec) Encode(v any) (models.EncodedPayload, error) {
	if err := checkValue(v, "$"); err != nil {
		return models.EncodedPayload{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}
	plaintext, err := json.Marshal(v)
	if err != nil {
		return models.EncodedPayload{}, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return models.EncodedPayload{}, fmt.Errorf("%w: nonce: %v", ErrEncoding, err)
	}

	sealed := c.aead.Seal(nil, nonce, plaintext, nil)
	split := len(sealed) - c.aead.Overhead()

	return models.EncodedPayload{
		Ciphertext: append([]byte(nil), sealed[:split]...),
		Nonce:      nonce,
		Tag:        append([]byte(nil), sealed[split:]...),
	}, nil
}

// Decode verifies and opens p, returning the original value.
func (c *Codec) Decode(p models.EncodedPayload) (any, error) {
	if len(p.Nonce) != c.aead.NonceSize() {
		return nil, fmt.Errorf("%w: nonce is %d bytes", ErrDecoding, len(p.Nonce))
	}
	if len(p.Tag) != c.aead.Overhead() {
		return nil, fmt.Errorf("%w: tag is %d bytes", ErrDecoding, len(p.Tag))
	}

	sealed := make([]byte, 0, len(p.Ciphertext)+len(p.Tag))
	sealed = append(sealed, p.Ciphertext...)
	sealed = append(sealed, p.Tag...)

	plaintext, err := c.aead.Open(nil, p.Nonce, sealed, nil)
	if err != nil {
		return nil, ErrIntegrity
	}

	var v any
	if err := json.Unmarshal(plaintext, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecoding, err)
	}
	return v, nil
}

// DecodeDocument decodes p and requires the value to be a JSON object.
func (c *Codec) DecodeDocument(p models.EncodedPayload) (map[string]any, error) {
	v, err := c.Decode(p)
	if err != nil {
		return nil, err
	}
	doc, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: payload is %T, not an object", ErrDecoding, v)
	}
	return doc, nil
}

// DecodeRecord decodes the payload of an application.
func (c *Codec) DecodeRecord(rec models.Application) (map[string]any, error) {
	return c.DecodeDocument(rec.Payload)
}

func checkValue(v any, path string) error {
	switch t := v.(type) {
	case nil, bool:
		return nil
	case string:
		if !utf8.ValidString(t) {
			return fmt.Errorf("invalid UTF-8 string at %s", path)
		}
		return nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return fmt.Errorf("non-finite number at %s", path)
		}
		return nil
	case []any:
		if t == nil {
			return fmt.Errorf("nil array at %s", path)
		}
		for i, e := range t {
			if err := checkValue(e, fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
		return nil
	case map[string]any:
		if t == nil {
			return fmt.Errorf("nil object at %s", path)
		}
		for k, e := range t {
			if !utf8.ValidString(k) {
				return fmt.Errorf("invalid UTF-8 key at %s", path)
			}
			if err := checkValue(e, path+"."+k); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported type %T at %s", v, path)
	}
}
