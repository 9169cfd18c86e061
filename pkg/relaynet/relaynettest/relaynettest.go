// Package relaynettest собирает подписанные сообщения Relaynet для тестов.
package relaynettest

import (
	"context"
	"crypto/ecdh"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/x509"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

// Node участник сети с ключом подписи.
type Node struct {
	Certificate relaynet.Certificate
	SigningKey  ed25519.PrivateKey
}

// NewNode создаёт узел с сертификатом, действующим сутки.
func NewNode(t testing.TB, commonName string) *Node {
	t.Helper()

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	return &Node{
		Certificate: relaynet.NewCertificate(commonName, publicKey, time.Now().Add(-time.Hour), 24*time.Hour),
		SigningKey:  privateKey,
	}
}

// Address приватный адрес узла.
func (n *Node) Address() string {
	return n.Certificate.CalculateSubjectPrivateAddress()
}

// Gateway шлюз: узел с ключом шифрования.
type Gateway struct {
	*Node
	KeyID      []byte
	PrivateKey *ecdh.PrivateKey
}

// NewGateway создаёт шлюз со случайным X25519-ключом.
func NewGateway(t testing.TB, commonName string) *Gateway {
	t.Helper()

	privateKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)

	return &Gateway{
		Node:       NewNode(t, commonName),
		KeyID:      randomBytes(8),
		PrivateKey: privateKey,
	}
}

// KeyStore хранилище, содержащее ключ шлюза.
func (g *Gateway) KeyStore(t testing.TB) *relaynet.MemoryPrivateKeyStore {
	t.Helper()

	store := relaynet.NewMemoryPrivateKeyStore()
	require.NoError(t, store.SaveKey(context.Background(), g.KeyID, g.PrivateKey))
	return store
}

// NewParcel создаёт действующую посылку от sender.
func NewParcel(sender *Node, chain []relaynet.Certificate, recipientAddress string, payload []byte) *relaynet.Parcel {
	return &relaynet.Parcel{Message: relaynet.Message{
		ID:                       "parcel-" + rand.Text(),
		RecipientAddress:         recipientAddress,
		CreationDate:             time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
		TTL:                      time.Hour,
		Payload:                  payload,
		SenderCertificate:        sender.Certificate,
		SenderCaCertificateChain: chain,
	}}
}

// SerializeParcel подписывает посылку ключом sender.
func SerializeParcel(t testing.TB, sender *Node, parcel *relaynet.Parcel) []byte {
	t.Helper()

	raw, err := parcel.Serialize(sender.SigningKey)
	require.NoError(t, err)
	return raw
}

// Parcel создаёт и сериализует посылку.
func Parcel(t testing.TB, sender *Node, chain []relaynet.Certificate, recipientAddress string, payload string) (*relaynet.Parcel, []byte) {
	t.Helper()

	parcel := NewParcel(sender, chain, recipientAddress, []byte(payload))
	return parcel, SerializeParcel(t, sender, parcel)
}

// ParcelCollectionAck сериализует подтверждение доставки.
func ParcelCollectionAck(t testing.TB, ack relaynet.ParcelCollectionAck) []byte {
	t.Helper()

	raw, err := ack.Serialize()
	require.NoError(t, err)
	return raw
}

// Cargo шифрует messages одноразовым ключом для recipient и подписывает cargo ключом sender.
func Cargo(t testing.TB, sender, recipient *Gateway, messages ...[]byte) []byte {
	t.Helper()

	plaintext := messageSet(t, messages)
	env, err := relaynet.EncryptSessionless(plaintext, recipient.KeyID, recipient.PrivateKey.PublicKey())
	require.NoError(t, err)

	return sealCargo(t, sender, recipient, env)
}

// SessionCargo шифрует messages ключом сессии sender и возвращает
// ключ, который получатель должен сохранить.
func SessionCargo(t testing.TB, sender, recipient *Gateway, messages ...[]byte) ([]byte, relaynet.SessionKey) {
	t.Helper()

	sessionKey, err := ecdh.X25519().GenerateKey(rand.Reader)
	require.NoError(t, err)
	sessionKeyID := randomBytes(8)

	plaintext := messageSet(t, messages)
	env, err := relaynet.EncryptWithSession(plaintext, recipient.KeyID, recipient.PrivateKey.PublicKey(), sessionKeyID, sessionKey)
	require.NoError(t, err)

	der, err := x509.MarshalPKIXPublicKey(sessionKey.PublicKey())
	require.NoError(t, err)

	return sealCargo(t, sender, recipient, env), relaynet.SessionKey{KeyID: sessionKeyID, PublicKeyDer: der}
}

// CargoWithPayload подписывает cargo с произвольным payload.
func CargoWithPayload(t testing.TB, sender, recipient *Gateway, payload []byte) []byte {
	t.Helper()

	cargo := &relaynet.Cargo{Message: relaynet.Message{
		ID:                "cargo-" + rand.Text(),
		RecipientAddress:  recipient.Address(),
		CreationDate:      time.Now().Add(-time.Minute).UTC().Truncate(time.Second),
		TTL:               time.Hour,
		Payload:           payload,
		SenderCertificate: sender.Certificate,
	}}

	raw, err := cargo.Serialize(sender.SigningKey)
	require.NoError(t, err)
	return raw
}

func sealCargo(t testing.TB, sender, recipient *Gateway, env *relaynet.EnvelopedData) []byte {
	t.Helper()

	payload, err := env.Serialize()
	require.NoError(t, err)
	return CargoWithPayload(t, sender, recipient, payload)
}

func messageSet(t testing.TB, messages [][]byte) []byte {
	t.Helper()

	raw, err := (&relaynet.CargoMessageSet{Messages: messages}).Serialize()
	require.NoError(t, err)
	return raw
}

func randomBytes(n int) []byte {
	out := make([]byte, n)
	_, _ = rand.Read(out)
	return out
}
