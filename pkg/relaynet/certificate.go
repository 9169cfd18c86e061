package relaynet

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Certificate сертификат узла сети: ключ подписи и срок действия.
type Certificate struct {
	CommonName       string            `cbor:"1,keyasint"`
	SubjectPublicKey ed25519.PublicKey `cbor:"2,keyasint"`
	NotBefore        time.Time         `cbor:"3,keyasint"`
	NotAfter         time.Time         `cbor:"4,keyasint"`
}

// NewCertificate выпускает сертификат для publicKey со сроком действия ttl.
func NewCertificate(commonName string, publicKey ed25519.PublicKey, notBefore time.Time, ttl time.Duration) Certificate {
	return Certificate{
		CommonName:       commonName,
		SubjectPublicKey: publicKey,
		NotBefore:        notBefore.UTC().Truncate(time.Second),
		NotAfter:         notBefore.Add(ttl).UTC().Truncate(time.Second),
	}
}

// CalculateSubjectPrivateAddress возвращает приватный адрес владельца сертификата:
// "0" + hex(sha256(публичный ключ)).
func (c Certificate) CalculateSubjectPrivateAddress() string {
	digest := sha256.Sum256(c.SubjectPublicKey)
	return "0" + hex.EncodeToString(digest[:])
}

// Validate проверяет, что сертификат действует в момент now.
func (c Certificate) Validate(now time.Time) error {
	if len(c.SubjectPublicKey) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: certificate public key is malformed", ErrInvalidMessage)
	}
	if now.Before(c.NotBefore) {
		return fmt.Errorf("%w: certificate is not yet valid", ErrInvalidMessage)
	}
	if now.After(c.NotAfter) {
		return fmt.Errorf("%w: certificate expired", ErrInvalidMessage)
	}
	return nil
}
