package parcelstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/internal/storage/badger"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/storage"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet/relaynettest"
)

type published struct {
	data    []byte
	channel string
	suffix  string
}

type recordingPublisher struct {
	mu       sync.Mutex
	messages []published
	err      error
}

func (p *recordingPublisher) PublishMessage(_ context.Context, data []byte, channel, clientIDSuffix string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, published{data: data, channel: channel, suffix: clientIDSuffix})
	return nil
}

func newTestStore(t *testing.T) (*Store, *badger.ObjectStore) {
	t.Helper()

	objects, err := badger.New(badger.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = objects.Close() })

	return New(objects, zap.NewNop()), objects
}

func TestStoreEndpointBoundParcel(t *testing.T) {
	store, objects := newTestStore(t)
	records := parcel.NewMemoryCollectionStorage()
	publisher := &recordingPublisher{}
	sender := relaynettest.NewNode(t, "endpoint")
	p, raw := relaynettest.Parcel(t, sender, nil, "https://pong.example", "ping")

	key, err := store.StoreEndpointBoundParcel(context.Background(), p, raw, "0peer", records, publisher)
	require.NoError(t, err)

	assert.Equal(t, "parcels/endpoint-bound/0peer/https:%2F%2Fpong.example/"+sender.Address()+"/"+p.ID, key)

	stored, err := objects.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, raw, stored)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "crc-parcels", publisher.messages[0].channel)
	assert.Equal(t, "-crc-parcels", publisher.messages[0].suffix)

	var queued parcel.QueuedInternetBoundMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0].data, &queued))
	assert.Equal(t, key, queued.ParcelObjectKey)
	assert.Equal(t, "https://pong.example", queued.ParcelRecipientAddress)
	assert.True(t, p.ExpiryDate().Equal(queued.ParcelExpiryDate))

	assert.Equal(t, 1, records.Len())
}

func TestStoreEndpointBoundParcel_PreviouslyProcessed(t *testing.T) {
	store, _ := newTestStore(t)
	records := parcel.NewMemoryCollectionStorage()
	publisher := &recordingPublisher{}
	sender := relaynettest.NewNode(t, "endpoint")
	p, raw := relaynettest.Parcel(t, sender, nil, "https://pong.example", "ping")

	first, err := store.StoreEndpointBoundParcel(context.Background(), p, raw, "0peer", records, publisher)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := store.StoreEndpointBoundParcel(context.Background(), p, raw, "0peer", records, publisher)
	require.NoError(t, err)
	assert.Empty(t, second)
	assert.Len(t, publisher.messages, 1)
}

func TestStoreEndpointBoundParcel_Invalid(t *testing.T) {
	store, _ := newTestStore(t)
	sender := relaynettest.NewNode(t, "endpoint")
	p := relaynettest.NewParcel(sender, nil, "https://pong.example", nil)
	p.CreationDate = time.Now().Add(-2 * time.Hour)
	raw := relaynettest.SerializeParcel(t, sender, p)

	_, err := store.StoreEndpointBoundParcel(context.Background(), p, raw, "0peer", parcel.NewMemoryCollectionStorage(), &recordingPublisher{})
	assert.ErrorIs(t, err, relaynet.ErrInvalidMessage)
}

func TestStoreEndpointBoundParcel_PublishFailureSkipsRecord(t *testing.T) {
	store, _ := newTestStore(t)
	records := parcel.NewMemoryCollectionStorage()
	publisher := &recordingPublisher{err: errors.New("broker down")}
	sender := relaynettest.NewNode(t, "endpoint")
	p, raw := relaynettest.Parcel(t, sender, nil, "https://pong.example", "ping")

	_, err := store.StoreEndpointBoundParcel(context.Background(), p, raw, "0peer", records, publisher)
	assert.ErrorIs(t, err, publisher.err)
	assert.Equal(t, 0, records.Len())
}

func TestGatewayBoundParcel_StoreAndDelete(t *testing.T) {
	store, objects := newTestStore(t)
	publisher := &recordingPublisher{}
	sender := relaynettest.NewNode(t, "endpoint")
	p, raw := relaynettest.Parcel(t, sender, nil, "0recipient", "pong")

	key, err := store.StoreGatewayBoundParcel(context.Background(), p, raw, "0peer", publisher)
	require.NoError(t, err)

	require.Len(t, publisher.messages, 1)
	assert.Equal(t, "pdc-parcel.0peer", publisher.messages[0].channel)

	var queued parcel.QueuedGatewayBoundMessage
	require.NoError(t, json.Unmarshal(publisher.messages[0].data, &queued))
	assert.Equal(t, key, queued.ParcelObjectKey)
	assert.Equal(t, p.ID, queued.ParcelID)

	require.NoError(t, store.DeleteGatewayBoundParcel(context.Background(), p.ID, sender.Address(), "0recipient", "0peer"))
	_, err = objects.Get(context.Background(), key)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, store.DeleteGatewayBoundParcel(context.Background(), p.ID, sender.Address(), "0recipient", "0peer"))
}

func TestInternetBoundParcel_RetrieveAndDelete(t *testing.T) {
	store, objects := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, objects.Put(ctx, "parcels/endpoint-bound/x", []byte("parcel")))

	data, err := store.RetrieveInternetBoundParcel(ctx, "parcels/endpoint-bound/x")
	require.NoError(t, err)
	assert.Equal(t, []byte("parcel"), data)

	require.NoError(t, store.DeleteInternetBoundParcel(ctx, "parcels/endpoint-bound/x"))
	_, err = store.RetrieveInternetBoundParcel(ctx, "parcels/endpoint-bound/x")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
