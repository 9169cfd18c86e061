package etcd

import (
	"crypto/ecdh"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

// collectionDTO DTO для сериализации parcel.Collection в etcd.
type collectionDTO struct {
	ParcelID                     string    `json:"parcel_id"`
	SenderEndpointPrivateAddress string    `json:"sender_endpoint_private_address"`
	RecipientEndpointAddress     string    `json:"recipient_endpoint_address"`
	PeerGatewayPrivateAddress    string    `json:"peer_gateway_private_address"`
	ParcelExpiryDate             time.Time `json:"parcel_expiry_date"`
}

func collectionToDTO(c parcel.Collection) *collectionDTO {
	return &collectionDTO{
		ParcelID:                     c.ParcelID,
		SenderEndpointPrivateAddress: c.SenderEndpointPrivateAddress,
		RecipientEndpointAddress:     c.RecipientEndpointAddress,
		PeerGatewayPrivateAddress:    c.PeerGatewayPrivateAddress,
		ParcelExpiryDate:             c.ParcelExpiryDate,
	}
}

// sessionKeyDTO ключ сессии пира. []byte сериализуются в base64.
type sessionKeyDTO struct {
	PeerAddress  string    `json:"peer_address"`
	KeyID        []byte    `json:"key_id"`
	PublicKeyDer []byte    `json:"public_key_der"`
	CreationTime time.Time `json:"creation_time"`
}

func sessionKeyToDTO(key relaynet.SessionKey, peerAddress string, creationTime time.Time) *sessionKeyDTO {
	return &sessionKeyDTO{
		PeerAddress:  peerAddress,
		KeyID:        key.KeyID,
		PublicKeyDer: key.PublicKeyDer,
		CreationTime: creationTime.UTC(),
	}
}

func dtoToSessionKey(dto *sessionKeyDTO) *relaynet.StoredSessionKey {
	return &relaynet.StoredSessionKey{
		SessionKey: relaynet.SessionKey{
			KeyID:        dto.KeyID,
			PublicKeyDer: dto.PublicKeyDer,
		},
		CreationTime: dto.CreationTime,
	}
}

// privateKeyDTO приватный ключ в PKCS#8.
type privateKeyDTO struct {
	KeyID      []byte `json:"key_id"`
	PrivateKey []byte `json:"private_key_pkcs8"`
}

func privateKeyToDTO(keyID []byte, key *ecdh.PrivateKey) (*privateKeyDTO, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}
	return &privateKeyDTO{KeyID: keyID, PrivateKey: der}, nil
}

func dtoToPrivateKey(dto *privateKeyDTO) (*ecdh.PrivateKey, error) {
	parsed, err := x509.ParsePKCS8PrivateKey(dto.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}

	key, ok := parsed.(*ecdh.PrivateKey)
	if !ok {
		return nil, errors.New("stored private key is not an ECDH key")
	}
	return key, nil
}
