// Package etcd хранит в etcd записи о принятых посылках, ключи сессий пиров
// и собственные приватные ключи шлюза.
package etcd

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	"github.com/Alexey-zaliznuak/relaygate/pkg/logger"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

var ErrNotFound = errors.New("not found")

// Префиксы ключей в etcd
const (
	keyPrefixParcelCollections = "/relaygate/parcel-collections/"
	keyPrefixPeerKeys          = "/relaygate/peer-keys/"
	keyPrefixPrivateKeys       = "/relaygate/private-keys/"
)

// SessionKeyTTL срок хранения ключа сессии пира.
const SessionKeyTTL = 30 * 24 * time.Hour

const saveSessionKeyAttempts = 3

// Storage реализует parcel.CollectionStorage, relaynet.PublicKeyStore
// и relaynet.PrivateKeyStore на базе etcd.
type Storage struct {
	client *clientv3.Client
	kv     clientv3.KV
	lease  clientv3.Lease
	// timeout для операций с etcd
	timeout time.Duration
}

// Config конфигурация для подключения к etcd.
type Config struct {
	Endpoints   []string
	DialTimeout time.Duration
	OpTimeout   time.Duration
}

// New создаёт хранилище на базе etcd.
func New(cfg Config) (*Storage, error) {
	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: cfg.DialTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to etcd: %w", err)
	}

	storage := newStorage(client, client, cfg.OpTimeout)
	storage.client = client
	return storage, nil
}

func newStorage(kv clientv3.KV, lease clientv3.Lease, timeout time.Duration) *Storage {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Storage{kv: kv, lease: lease, timeout: timeout}
}

// Close закрывает соединение с etcd.
func (s *Storage) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// === Parcel Collections ===

func (s *Storage) HasParcelCollection(ctx context.Context, collection parcel.Collection) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(ctx, parcelCollectionKey(collection), clientv3.WithCountOnly())
	if err != nil {
		return false, fmt.Errorf("failed to get parcel collection: %w", err)
	}

	return resp.Count > 0, nil
}

func (s *Storage) RecordParcelCollection(ctx context.Context, collection parcel.Collection) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	key := parcelCollectionKey(collection)

	data, err := json.Marshal(collectionToDTO(collection))
	if err != nil {
		return fmt.Errorf("failed to marshal parcel collection: %w", err)
	}

	lease, err := s.lease.Grant(ctx, leaseSeconds(time.Until(collection.ParcelExpiryDate)))
	if err != nil {
		return fmt.Errorf("failed to grant parcel collection lease: %w", err)
	}

	// Запись создаётся один раз; повторная доставка cargo её не продлевает.
	txnResp, err := s.kv.Txn(ctx).
		If(clientv3.Compare(clientv3.Version(key), "=", 0)).
		Then(clientv3.OpPut(key, string(data), clientv3.WithLease(lease.ID))).
		Commit()
	if err != nil {
		s.revokeLease(ctx, lease.ID)
		return fmt.Errorf("failed to record parcel collection: %w", err)
	}
	if !txnResp.Succeeded {
		s.revokeLease(ctx, lease.ID)
	}

	return nil
}

// === Peer Session Keys ===

// SaveSessionKey сохраняет ключ сессии пира, если он новее сохранённого.
func (s *Storage) SaveSessionKey(ctx context.Context, key relaynet.SessionKey, peerAddress string, creationTime time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	etcdKey := keyPrefixPeerKeys + escapeSegment(peerAddress)

	data, err := json.Marshal(sessionKeyToDTO(key, peerAddress, creationTime))
	if err != nil {
		return fmt.Errorf("failed to marshal session key: %w", err)
	}

	for range saveSessionKeyAttempts {
		resp, err := s.kv.Get(ctx, etcdKey)
		if err != nil {
			return fmt.Errorf("failed to get session key: %w", err)
		}

		var modRevision int64
		if len(resp.Kvs) > 0 {
			var existing sessionKeyDTO
			if err := json.Unmarshal(resp.Kvs[0].Value, &existing); err == nil && existing.CreationTime.After(creationTime) {
				return nil
			}
			modRevision = resp.Kvs[0].ModRevision
		}

		lease, err := s.lease.Grant(ctx, leaseSeconds(SessionKeyTTL))
		if err != nil {
			return fmt.Errorf("failed to grant session key lease: %w", err)
		}

		txnResp, err := s.kv.Txn(ctx).
			If(clientv3.Compare(clientv3.ModRevision(etcdKey), "=", modRevision)).
			Then(clientv3.OpPut(etcdKey, string(data), clientv3.WithLease(lease.ID))).
			Commit()
		if err != nil {
			s.revokeLease(ctx, lease.ID)
			return fmt.Errorf("failed to save session key: %w", err)
		}
		if txnResp.Succeeded {
			return nil
		}
		s.revokeLease(ctx, lease.ID)
	}

	return fmt.Errorf("failed to save session key for %s: concurrent updates", peerAddress)
}

// GetSessionKey возвращает последний сохранённый ключ сессии пира.
func (s *Storage) GetSessionKey(ctx context.Context, peerAddress string) (*relaynet.StoredSessionKey, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(ctx, keyPrefixPeerKeys+escapeSegment(peerAddress))
	if err != nil {
		return nil, fmt.Errorf("failed to get session key: %w", err)
	}

	if len(resp.Kvs) == 0 {
		return nil, ErrNotFound
	}

	var dto sessionKeyDTO
	if err := json.Unmarshal(resp.Kvs[0].Value, &dto); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session key: %w", err)
	}

	return dtoToSessionKey(&dto), nil
}

// === Private Keys ===

// SaveKey сохраняет собственный приватный ключ шлюза.
func (s *Storage) SaveKey(ctx context.Context, keyID []byte, key *ecdh.PrivateKey) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	dto, err := privateKeyToDTO(keyID, key)
	if err != nil {
		return err
	}

	data, err := json.Marshal(dto)
	if err != nil {
		return fmt.Errorf("failed to marshal private key: %w", err)
	}

	if _, err := s.kv.Put(ctx, privateKeyKey(keyID), string(data)); err != nil {
		return fmt.Errorf("failed to save private key: %w", err)
	}

	return nil
}

// FetchKey возвращает приватный ключ. Сбои etcd возвращаются как
// *relaynet.PrivateKeyStoreError, отсутствие ключа как relaynet.ErrUnknownKey.
func (s *Storage) FetchKey(ctx context.Context, keyID []byte) (*ecdh.PrivateKey, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	resp, err := s.kv.Get(ctx, privateKeyKey(keyID))
	if err != nil {
		return nil, &relaynet.PrivateKeyStoreError{Err: fmt.Errorf("failed to get private key: %w", err)}
	}

	if len(resp.Kvs) == 0 {
		return nil, relaynet.ErrUnknownKey
	}

	var dto privateKeyDTO
	if err := json.Unmarshal(resp.Kvs[0].Value, &dto); err != nil {
		return nil, &relaynet.PrivateKeyStoreError{Err: fmt.Errorf("failed to unmarshal private key: %w", err)}
	}

	key, err := dtoToPrivateKey(&dto)
	if err != nil {
		return nil, &relaynet.PrivateKeyStoreError{Err: err}
	}
	return key, nil
}

// revokeLease отзывает lease, не привязанный ни к одному ключу.
// Ошибку не возвращаем: lease всё равно истечёт по TTL.
func (s *Storage) revokeLease(ctx context.Context, id clientv3.LeaseID) {
	if _, err := s.lease.Revoke(ctx, id); err != nil {
		logger.GetFromContext(ctx).Warn("Failed to revoke etcd lease",
			zap.Int64("leaseId", int64(id)),
			zap.Error(err),
		)
	}
}

// === Ключи ===

func parcelCollectionKey(c parcel.Collection) string {
	return keyPrefixParcelCollections +
		escapeSegment(c.PeerGatewayPrivateAddress) + "/" +
		escapeSegment(c.SenderEndpointPrivateAddress) + "/" +
		escapeSegment(c.RecipientEndpointAddress) + "/" +
		escapeSegment(c.ParcelID)
}

func privateKeyKey(keyID []byte) string {
	return keyPrefixPrivateKeys + hex.EncodeToString(keyID)
}

// escapeSegment экранирует "/" и прочие спецсимволы: адреса получателей бывают URL.
func escapeSegment(segment string) string {
	return url.PathEscape(segment)
}

// leaseSeconds переводит ttl в секунды lease etcd, не меньше одной.
func leaseSeconds(ttl time.Duration) int64 {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		return 1
	}
	return seconds
}
