// Package parcelstore сохраняет посылки, проходящие через шлюз,
// и ставит их в очереди доставки.
package parcelstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/storage"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

// Суффиксы client id для публикации уведомлений.
const (
	crcParcelsClientIDSuffix = "-crc-parcels"
	pdcParcelsClientIDSuffix = "-pdc-parcels"
)

const (
	keyPrefixEndpointBound = "parcels/endpoint-bound"
	keyPrefixGatewayBound  = "parcels/gateway-bound"
)

// MessagePublisher публикует одно сообщение в канал брокера.
type MessagePublisher interface {
	PublishMessage(ctx context.Context, data []byte, channel, clientIDSuffix string) error
}

// Store хранилище посылок поверх storage.ObjectStorage.
type Store struct {
	objects storage.ObjectStorage
	log     *zap.Logger
	now     func() time.Time
}

// Option настраивает Store.
type Option func(*Store)

// WithClock подменяет источник времени для проверки сроков посылок.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New создаёт хранилище посылок.
func New(objects storage.ObjectStorage, log *zap.Logger, opts ...Option) *Store {
	s := &Store{objects: objects, log: log, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// === Endpoint-bound ===

// StoreEndpointBoundParcel сохраняет посылку, пришедшую от пира, и ставит её
// в очередь доставки через PoHTTP.
//
// Пустой ключ без ошибки означает, что посылка уже была принята раньше.
// Посылка, не прошедшая проверку, возвращает ошибку, оборачивающую
// relaynet.ErrInvalidMessage.
func (s *Store) StoreEndpointBoundParcel(
	ctx context.Context,
	p *relaynet.Parcel,
	raw []byte,
	peerGatewayAddress string,
	records parcel.CollectionStorage,
	publisher MessagePublisher,
) (string, error) {
	if err := p.Validate(s.now()); err != nil {
		return "", err
	}

	collection := parcel.Collection{
		ParcelID:                     p.ID,
		SenderEndpointPrivateAddress: p.SenderAddress(),
		RecipientEndpointAddress:     p.RecipientAddress,
		PeerGatewayPrivateAddress:    peerGatewayAddress,
		ParcelExpiryDate:             p.ExpiryDate(),
	}

	collected, err := records.HasParcelCollection(ctx, collection)
	if err != nil {
		return "", err
	}
	if collected {
		return "", nil
	}

	key := objectKey(keyPrefixEndpointBound, peerGatewayAddress, p.RecipientAddress, collection.SenderEndpointPrivateAddress, p.ID)
	if err := s.objects.Put(ctx, key, raw); err != nil {
		return "", err
	}

	data, err := json.Marshal(parcel.QueuedInternetBoundMessage{
		ParcelObjectKey:        key,
		ParcelRecipientAddress: p.RecipientAddress,
		ParcelExpiryDate:       collection.ParcelExpiryDate,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal queued parcel: %w", err)
	}

	if err := publisher.PublishMessage(ctx, data, entities.ChannelCRCParcels, crcParcelsClientIDSuffix); err != nil {
		return "", fmt.Errorf("failed to queue parcel %s: %w", p.ID, err)
	}

	if err := records.RecordParcelCollection(ctx, collection); err != nil {
		return "", err
	}

	return key, nil
}

// RetrieveInternetBoundParcel возвращает сериализованную посылку по ключу.
func (s *Store) RetrieveInternetBoundParcel(ctx context.Context, key string) ([]byte, error) {
	return s.objects.Get(ctx, key)
}

// DeleteInternetBoundParcel удаляет посылку после доставки или истечения срока.
func (s *Store) DeleteInternetBoundParcel(ctx context.Context, key string) error {
	return s.objects.Delete(ctx, key)
}

// === Gateway-bound ===

// StoreGatewayBoundParcel сохраняет посылку для пира и уведомляет канал его посылок.
func (s *Store) StoreGatewayBoundParcel(
	ctx context.Context,
	p *relaynet.Parcel,
	raw []byte,
	peerGatewayAddress string,
	publisher MessagePublisher,
) (string, error) {
	if err := p.Validate(s.now()); err != nil {
		return "", err
	}

	key := objectKey(keyPrefixGatewayBound, peerGatewayAddress, p.RecipientAddress, p.SenderAddress(), p.ID)
	if err := s.objects.Put(ctx, key, raw); err != nil {
		return "", err
	}

	data, err := json.Marshal(parcel.QueuedGatewayBoundMessage{
		ParcelObjectKey:  key,
		ParcelID:         p.ID,
		ParcelExpiryDate: p.ExpiryDate(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal queued parcel: %w", err)
	}

	if err := publisher.PublishMessage(ctx, data, entities.PDCParcelChannel(peerGatewayAddress), pdcParcelsClientIDSuffix); err != nil {
		return "", fmt.Errorf("failed to queue parcel %s: %w", p.ID, err)
	}

	s.log.Debug("Gateway-bound parcel was stored",
		zap.String("parcelId", p.ID),
		zap.String("parcelObjectKey", key),
		zap.String("peerGatewayAddress", peerGatewayAddress),
	)

	return key, nil
}

// DeleteGatewayBoundParcel удаляет посылку, получение которой подтвердил пир.
// Повторное удаление не ошибка.
func (s *Store) DeleteGatewayBoundParcel(
	ctx context.Context,
	parcelID, senderPrivateAddress, recipientAddress, peerGatewayAddress string,
) error {
	key := objectKey(keyPrefixGatewayBound, peerGatewayAddress, recipientAddress, senderPrivateAddress, parcelID)
	return s.objects.Delete(ctx, key)
}

// objectKey собирает ключ объекта; сегменты экранируются, т.к. адреса бывают URL.
func objectKey(prefix string, segments ...string) string {
	escaped := make([]string, 0, len(segments)+1)
	escaped = append(escaped, prefix)
	for _, segment := range segments {
		escaped = append(escaped, url.PathEscape(segment))
	}
	return strings.Join(escaped, "/")
}
