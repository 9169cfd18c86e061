package relaynet_test

import (
	"context"
	"crypto/ecdh"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet/relaynettest"
)

type unavailableKeyStore struct{}

func (unavailableKeyStore) FetchKey(context.Context, []byte) (*ecdh.PrivateKey, error) {
	return nil, &relaynet.PrivateKeyStoreError{Err: errors.New("etcd is down")}
}

func TestCargo_UnwrapSessionless(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	raw := relaynettest.Cargo(t, peer, local, []byte("one"), []byte("two"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	set, sessionKey, err := cargo.UnwrapPayload(context.Background(), local.KeyStore(t))
	require.NoError(t, err)
	assert.Nil(t, sessionKey)
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, set.Messages)
}

func TestCargo_UnwrapWithSession(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	raw, expected := relaynettest.SessionCargo(t, peer, local, []byte("one"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	set, sessionKey, err := cargo.UnwrapPayload(context.Background(), local.KeyStore(t))
	require.NoError(t, err)
	require.NotNil(t, sessionKey)
	assert.Equal(t, expected, *sessionKey)
	assert.Len(t, set.Messages, 1)

	_, err = sessionKey.PublicKey()
	assert.NoError(t, err)
}

func TestCargo_UnwrapUnknownKey(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	raw := relaynettest.Cargo(t, peer, local, []byte("one"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	_, _, err = cargo.UnwrapPayload(context.Background(), relaynet.NewMemoryPrivateKeyStore())
	assert.ErrorIs(t, err, relaynet.ErrInvalidEnvelope)
	assert.ErrorIs(t, err, relaynet.ErrUnknownKey)
	assert.False(t, relaynet.IsPrivateKeyStoreError(err))
}

func TestCargo_UnwrapStoreUnavailable(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	raw := relaynettest.Cargo(t, peer, local, []byte("one"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	_, _, err = cargo.UnwrapPayload(context.Background(), unavailableKeyStore{})
	assert.True(t, relaynet.IsPrivateKeyStoreError(err))
}

func TestCargo_UnwrapWrongRecipientKey(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	impostor := relaynettest.NewGateway(t, "impostor")
	impostor.KeyID = local.KeyID
	raw := relaynettest.Cargo(t, peer, local, []byte("one"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	_, _, err = cargo.UnwrapPayload(context.Background(), impostor.KeyStore(t))
	assert.ErrorIs(t, err, relaynet.ErrInvalidEnvelope)
}

func TestCargo_UnwrapGarbagePayload(t *testing.T) {
	peer := relaynettest.NewGateway(t, "peer")
	local := relaynettest.NewGateway(t, "local")
	raw := relaynettest.CargoWithPayload(t, peer, local, []byte("not an envelope"))

	cargo, err := relaynet.DeserializeCargo(raw)
	require.NoError(t, err)

	_, _, err = cargo.UnwrapPayload(context.Background(), local.KeyStore(t))
	assert.ErrorIs(t, err, relaynet.ErrInvalidEnvelope)
}

func TestMemoryPublicKeyStore_NewerWins(t *testing.T) {
	store := relaynet.NewMemoryPublicKeyStore()
	ctx := context.Background()
	older := relaynet.SessionKey{KeyID: []byte("old")}
	newer := relaynet.SessionKey{KeyID: []byte("new")}
	now := relaynettest.NewNode(t, "x").Certificate.NotBefore

	require.NoError(t, store.SaveSessionKey(ctx, newer, "peer", now))
	require.NoError(t, store.SaveSessionKey(ctx, older, "peer", now.Add(-1)))

	stored, ok := store.GetSessionKey(ctx, "peer")
	require.True(t, ok)
	assert.Equal(t, []byte("new"), stored.KeyID)
}
