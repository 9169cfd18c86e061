package relaynet

import (
	"context"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const envelopeKeyInfo = "relaynet enveloped data"

// EnvelopeKind способ, которым отправитель получил ключ шифрования.
type EnvelopeKind uint8

const (
	// SessionlessEnvelope одноразовая пара ключей отправителя.
	SessionlessEnvelope EnvelopeKind = 1
	// SessionEnvelope ключ сессии отправителя; получатель сохраняет его
	// публичную часть для ответа.
	SessionEnvelope EnvelopeKind = 2
)

// OriginatorKey публичный ключ отправителя.
type OriginatorKey struct {
	KeyID        []byte `cbor:"1,keyasint"`
	PublicKeyDer []byte `cbor:"2,keyasint"`
}

// EnvelopedData зашифрованный payload: X25519 + HKDF-SHA256 + ChaCha20-Poly1305.
type EnvelopedData struct {
	Kind           EnvelopeKind  `cbor:"1,keyasint"`
	RecipientKeyID []byte        `cbor:"2,keyasint"`
	OriginatorKey  OriginatorKey `cbor:"3,keyasint"`
	Nonce          []byte        `cbor:"4,keyasint"`
	Ciphertext     []byte        `cbor:"5,keyasint"`
}

// SessionKey публичный ключ сессии пира.
type SessionKey struct {
	KeyID        []byte
	PublicKeyDer []byte
}

// PublicKey разбирает DER ключа.
func (k SessionKey) PublicKey() (*ecdh.PublicKey, error) {
	return parseX25519PublicKey(k.PublicKeyDer)
}

// EncryptSessionless шифрует plaintext для recipient одноразовым ключом.
func EncryptSessionless(plaintext, recipientKeyID []byte, recipient *ecdh.PublicKey) (*EnvelopedData, error) {
	ephemeral, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	return encrypt(SessionlessEnvelope, plaintext, recipientKeyID, recipient, nil, ephemeral)
}

// EncryptWithSession шифрует plaintext для recipient ключом сессии отправителя.
func EncryptWithSession(
	plaintext, recipientKeyID []byte,
	recipient *ecdh.PublicKey,
	originatorKeyID []byte,
	originator *ecdh.PrivateKey,
) (*EnvelopedData, error) {
	return encrypt(SessionEnvelope, plaintext, recipientKeyID, recipient, originatorKeyID, originator)
}

func encrypt(
	kind EnvelopeKind,
	plaintext, recipientKeyID []byte,
	recipient *ecdh.PublicKey,
	originatorKeyID []byte,
	originator *ecdh.PrivateKey,
) (*EnvelopedData, error) {
	der, err := x509.MarshalPKIXPublicKey(originator.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to encode originator key: %w", err)
	}

	shared, err := originator.ECDH(recipient)
	if err != nil {
		return nil, fmt.Errorf("failed to derive shared secret: %w", err)
	}

	env := &EnvelopedData{
		Kind:           kind,
		RecipientKeyID: recipientKeyID,
		OriginatorKey:  OriginatorKey{KeyID: originatorKeyID, PublicKeyDer: der},
		Nonce:          make([]byte, chacha20poly1305.NonceSize),
	}
	if _, err := rand.Read(env.Nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	aead, err := env.aead(shared)
	if err != nil {
		return nil, err
	}
	env.Ciphertext = aead.Seal(nil, env.Nonce, plaintext, env.additionalData())

	return env, nil
}

// Serialize кодирует конверт в CBOR.
func (e *EnvelopedData) Serialize() ([]byte, error) {
	return marshal(e)
}

// DeserializeEnvelopedData разбирает конверт.
func DeserializeEnvelopedData(raw []byte) (*EnvelopedData, error) {
	var env EnvelopedData
	if err := unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if env.Kind != SessionlessEnvelope && env.Kind != SessionEnvelope {
		return nil, fmt.Errorf("%w: unknown kind %d", ErrInvalidEnvelope, env.Kind)
	}
	return &env, nil
}

// Decrypt расшифровывает конверт ключом получателя из store.
//
// Ошибки хранилища (*PrivateKeyStoreError) возвращаются как есть,
// остальные оборачивают ErrInvalidEnvelope.
func (e *EnvelopedData) Decrypt(ctx context.Context, store PrivateKeyStore) ([]byte, error) {
	privateKey, err := store.FetchKey(ctx, e.RecipientKeyID)
	if err != nil {
		if IsPrivateKeyStoreError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	originator, err := parseX25519PublicKey(e.OriginatorKey.PublicKeyDer)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	shared, err := privateKey.ECDH(originator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}

	aead, err := e.aead(shared)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, e.Nonce, e.Ciphertext, e.additionalData())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	return plaintext, nil
}

func (e *EnvelopedData) aead(shared []byte) (cipher.AEAD, error) {
	if len(e.Nonce) != chacha20poly1305.NonceSize {
		return nil, fmt.Errorf("%w: nonce has invalid size", ErrInvalidEnvelope)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, e.Nonce, []byte(envelopeKeyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to init cipher: %w", err)
	}
	return aead, nil
}

func (e *EnvelopedData) additionalData() []byte {
	ad := make([]byte, 0, 1+len(e.RecipientKeyID)+len(e.OriginatorKey.PublicKeyDer))
	ad = append(ad, byte(e.Kind))
	ad = append(ad, e.RecipientKeyID...)
	return append(ad, e.OriginatorKey.PublicKeyDer...)
}

func parseX25519PublicKey(der []byte) (*ecdh.PublicKey, error) {
	parsed, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("invalid public key: %w", err)
	}
	publicKey, ok := parsed.(*ecdh.PublicKey)
	if !ok || publicKey.Curve() != ecdh.X25519() {
		return nil, errors.New("public key is not X25519")
	}
	return publicKey, nil
}
