// Package relaynet реализует сообщения Relaynet, которыми обмениваются шлюзы:
// RAMF-сообщения (Cargo, Parcel), подтверждения доставки посылок,
// зашифрованные вложения и контракты хранилищ ключей.
package relaynet

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"
)

const formatSignature = "Relaynet"

const formatVersion byte = 0x00

const headerLength = len(formatSignature) + 2

// MessageType тип сообщения в заголовке.
type MessageType byte

// Типы сообщений.
const (
	TypeCargo               MessageType = 0x43
	TypeParcel              MessageType = 0x50
	TypeParcelCollectionAck MessageType = 0x51
)

// === RAMF ===

// Message поля, общие для всех RAMF-сообщений.
type Message struct {
	ID                       string        `cbor:"1,keyasint"`
	RecipientAddress         string        `cbor:"2,keyasint"`
	CreationDate             time.Time     `cbor:"3,keyasint"`
	TTL                      time.Duration `cbor:"4,keyasint"`
	Payload                  []byte        `cbor:"5,keyasint"`
	SenderCertificate        Certificate   `cbor:"6,keyasint"`
	SenderCaCertificateChain []Certificate `cbor:"7,keyasint,omitempty"`
}

type signedEnvelope struct {
	Body      []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// ExpiryDate момент, после которого сообщение недействительно.
func (m *Message) ExpiryDate() time.Time {
	return m.CreationDate.Add(m.TTL)
}

// SenderAddress приватный адрес отправителя.
func (m *Message) SenderAddress() string {
	return m.SenderCertificate.CalculateSubjectPrivateAddress()
}

// Validate проверяет сообщение на момент now: дату создания, срок жизни
// и сертификат отправителя.
func (m *Message) Validate(now time.Time) error {
	if m.ID == "" {
		return fmt.Errorf("%w: id is empty", ErrInvalidMessage)
	}
	if m.RecipientAddress == "" {
		return fmt.Errorf("%w: recipient address is empty", ErrInvalidMessage)
	}
	if m.CreationDate.After(now) {
		return fmt.Errorf("%w: creation date is in the future", ErrInvalidMessage)
	}
	if !m.ExpiryDate().After(now) {
		return fmt.Errorf("%w: message already expired", ErrInvalidMessage)
	}
	return m.SenderCertificate.Validate(now)
}

func (m *Message) serialize(messageType MessageType, signingKey ed25519.PrivateKey) ([]byte, error) {
	body, err := marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message body: %w", err)
	}

	envelope, err := marshal(signedEnvelope{
		Body:      body,
		Signature: ed25519.Sign(signingKey, body),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}

	return frame(messageType, envelope), nil
}

func deserializeMessage(raw []byte, expected MessageType) (*Message, error) {
	payload, err := unframe(raw, expected)
	if err != nil {
		return nil, &MalformedMessageError{Err: err}
	}

	var envelope signedEnvelope
	if err := unmarshal(payload, &envelope); err != nil {
		return nil, &MalformedMessageError{Err: fmt.Errorf("invalid envelope: %w", err)}
	}

	var message Message
	if err := unmarshal(envelope.Body, &message); err != nil {
		return nil, &MalformedMessageError{Err: fmt.Errorf("invalid body: %w", err)}
	}

	publicKey := message.SenderCertificate.SubjectPublicKey
	if len(publicKey) != ed25519.PublicKeySize || !ed25519.Verify(publicKey, envelope.Body, envelope.Signature) {
		return nil, &MalformedMessageError{
			ID:            message.ID,
			SenderAddress: message.SenderAddress(),
			Err:           errors.New("invalid signature"),
		}
	}

	return &message, nil
}

// === Cargo и Parcel ===

// Cargo контейнер, которым обмениваются шлюзы; Payload зашифрован.
type Cargo struct {
	Message
}

// Serialize подписывает и сериализует cargo.
func (c *Cargo) Serialize(signingKey ed25519.PrivateKey) ([]byte, error) {
	return c.serialize(TypeCargo, signingKey)
}

// DeserializeCargo разбирает cargo и проверяет подпись.
func DeserializeCargo(raw []byte) (*Cargo, error) {
	message, err := deserializeMessage(raw, TypeCargo)
	if err != nil {
		return nil, err
	}
	return &Cargo{Message: *message}, nil
}

// Parcel посылка между конечными точками.
type Parcel struct {
	Message
}

// Serialize подписывает и сериализует посылку.
func (p *Parcel) Serialize(signingKey ed25519.PrivateKey) ([]byte, error) {
	return p.serialize(TypeParcel, signingKey)
}

// PeerGatewayAddress возвращает приватный адрес шлюза отправителя: последний
// сертификат в цепочке CA отправителя.
func (p *Parcel) PeerGatewayAddress() (string, bool) {
	if len(p.SenderCaCertificateChain) == 0 {
		return "", false
	}
	return p.SenderCaCertificateChain[len(p.SenderCaCertificateChain)-1].CalculateSubjectPrivateAddress(), true
}

// DeserializeParcel разбирает посылку и проверяет подпись.
func DeserializeParcel(raw []byte) (*Parcel, error) {
	message, err := deserializeMessage(raw, TypeParcel)
	if err != nil {
		return nil, err
	}
	return &Parcel{Message: *message}, nil
}

// === Parcel Collection Ack ===

// ParcelCollectionAck подтверждение, что посылка забрана получателем.
type ParcelCollectionAck struct {
	SenderEndpointPrivateAddress string `cbor:"1,keyasint"`
	RecipientEndpointAddress     string `cbor:"2,keyasint"`
	ParcelID                     string `cbor:"3,keyasint"`
}

// Serialize сериализует подтверждение.
func (a *ParcelCollectionAck) Serialize() ([]byte, error) {
	payload, err := marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parcel collection ack: %w", err)
	}
	return frame(TypeParcelCollectionAck, payload), nil
}

// DeserializeParcelCollectionAck разбирает подтверждение.
func DeserializeParcelCollectionAck(raw []byte) (*ParcelCollectionAck, error) {
	payload, err := unframe(raw, TypeParcelCollectionAck)
	if err != nil {
		return nil, &MalformedMessageError{Err: err}
	}

	var ack ParcelCollectionAck
	if err := unmarshal(payload, &ack); err != nil {
		return nil, &MalformedMessageError{Err: fmt.Errorf("invalid parcel collection ack: %w", err)}
	}
	if ack.ParcelID == "" {
		return nil, &MalformedMessageError{Err: errors.New("parcel id is empty")}
	}
	return &ack, nil
}

// DeserializeCargoMessage разбирает элемент CargoMessageSet.
// Возвращает *Parcel или *ParcelCollectionAck.
func DeserializeCargoMessage(raw []byte) (any, error) {
	messageType, ok := typeOf(raw)
	if !ok {
		return nil, &MalformedMessageError{Err: errors.New("not a Relaynet message")}
	}

	switch messageType {
	case TypeParcel:
		return DeserializeParcel(raw)
	case TypeParcelCollectionAck:
		return DeserializeParcelCollectionAck(raw)
	default:
		return nil, &MalformedMessageError{Err: fmt.Errorf("%w: 0x%02x", ErrUnsupportedMessageType, byte(messageType))}
	}
}

// === Заголовок ===

func frame(messageType MessageType, payload []byte) []byte {
	out := make([]byte, 0, headerLength+len(payload))
	out = append(out, formatSignature...)
	out = append(out, byte(messageType), formatVersion)
	return append(out, payload...)
}

func typeOf(raw []byte) (MessageType, bool) {
	if len(raw) < headerLength || !bytes.HasPrefix(raw, []byte(formatSignature)) {
		return 0, false
	}
	return MessageType(raw[len(formatSignature)]), true
}

func unframe(raw []byte, expected MessageType) ([]byte, error) {
	messageType, ok := typeOf(raw)
	if !ok {
		return nil, errors.New("not a Relaynet message")
	}
	if messageType != expected {
		return nil, fmt.Errorf("%w: expected 0x%02x, got 0x%02x", ErrUnsupportedMessageType, byte(expected), byte(messageType))
	}
	if version := raw[len(formatSignature)+1]; version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}
	return raw[headerLength:], nil
}
