package relaynet

import (
	"context"
	"crypto/ecdh"
	"encoding/hex"
	"sync"
	"time"
)

// PrivateKeyStore хранилище собственных приватных ключей шлюза.
//
// FetchKey возвращает ErrUnknownKey, если ключа нет, и *PrivateKeyStoreError,
// если хранилище недоступно.
type PrivateKeyStore interface {
	FetchKey(ctx context.Context, keyID []byte) (*ecdh.PrivateKey, error)
}

// PublicKeyStore хранилище ключей сессий пиров.
type PublicKeyStore interface {
	SaveSessionKey(ctx context.Context, key SessionKey, peerAddress string, creationTime time.Time) error
}

// MemoryPrivateKeyStore PrivateKeyStore в памяти.
type MemoryPrivateKeyStore struct {
	mu   sync.RWMutex
	keys map[string]*ecdh.PrivateKey
}

// NewMemoryPrivateKeyStore создаёт пустое хранилище.
func NewMemoryPrivateKeyStore() *MemoryPrivateKeyStore {
	return &MemoryPrivateKeyStore{keys: make(map[string]*ecdh.PrivateKey)}
}

// SaveKey сохраняет ключ под keyID.
func (s *MemoryPrivateKeyStore) SaveKey(_ context.Context, keyID []byte, key *ecdh.PrivateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys[hex.EncodeToString(keyID)] = key
	return nil
}

func (s *MemoryPrivateKeyStore) FetchKey(_ context.Context, keyID []byte) (*ecdh.PrivateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[hex.EncodeToString(keyID)]
	if !ok {
		return nil, ErrUnknownKey
	}
	return key, nil
}

// StoredSessionKey ключ сессии пира вместе с моментом его создания.
type StoredSessionKey struct {
	SessionKey
	CreationTime time.Time
}

// MemoryPublicKeyStore PublicKeyStore в памяти. Для каждого пира хранится
// самый свежий ключ.
type MemoryPublicKeyStore struct {
	mu   sync.RWMutex
	keys map[string]StoredSessionKey
}

// NewMemoryPublicKeyStore создаёт пустое хранилище.
func NewMemoryPublicKeyStore() *MemoryPublicKeyStore {
	return &MemoryPublicKeyStore{keys: make(map[string]StoredSessionKey)}
}

func (s *MemoryPublicKeyStore) SaveSessionKey(_ context.Context, key SessionKey, peerAddress string, creationTime time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.keys[peerAddress]; ok && existing.CreationTime.After(creationTime) {
		return nil
	}
	s.keys[peerAddress] = StoredSessionKey{SessionKey: key, CreationTime: creationTime}
	return nil
}

// GetSessionKey возвращает сохранённый ключ пира.
func (s *MemoryPublicKeyStore) GetSessionKey(_ context.Context, peerAddress string) (StoredSessionKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key, ok := s.keys[peerAddress]
	return key, ok
}
