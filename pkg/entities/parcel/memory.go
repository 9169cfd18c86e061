package parcel

import (
	"context"
	"sync"
)

// MemoryCollectionStorage CollectionStorage в памяти.
type MemoryCollectionStorage struct {
	mu          sync.Mutex
	collections map[Collection]struct{}
}

// NewMemoryCollectionStorage создаёт пустое хранилище.
func NewMemoryCollectionStorage() *MemoryCollectionStorage {
	return &MemoryCollectionStorage{collections: make(map[Collection]struct{})}
}

func (s *MemoryCollectionStorage) HasParcelCollection(_ context.Context, collection Collection) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.collections[key(collection)]
	return ok, nil
}

func (s *MemoryCollectionStorage) RecordParcelCollection(_ context.Context, collection Collection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.collections[key(collection)] = struct{}{}
	return nil
}

// Len возвращает число записей.
func (s *MemoryCollectionStorage) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.collections)
}

// key отбрасывает срок жизни: запись идентифицируют посылка и её маршрут.
func key(c Collection) Collection {
	return Collection{
		ParcelID:                     c.ParcelID,
		SenderEndpointPrivateAddress: c.SenderEndpointPrivateAddress,
		RecipientEndpointAddress:     c.RecipientEndpointAddress,
		PeerGatewayPrivateAddress:    c.PeerGatewayPrivateAddress,
	}
}
