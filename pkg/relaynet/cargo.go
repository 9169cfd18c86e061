package relaynet

import (
	"context"
	"fmt"
)

// CargoMessageSet расшифрованное содержимое cargo: упорядоченный набор
// сериализованных Parcel и ParcelCollectionAck.
type CargoMessageSet struct {
	Messages [][]byte
}

// Serialize кодирует набор как CBOR-массив байтовых строк.
func (s *CargoMessageSet) Serialize() ([]byte, error) {
	messages := s.Messages
	if messages == nil {
		messages = [][]byte{}
	}
	return marshal(messages)
}

// DeserializeCargoMessageSet разбирает набор сообщений.
func DeserializeCargoMessageSet(raw []byte) (*CargoMessageSet, error) {
	var messages [][]byte
	if err := unmarshal(raw, &messages); err != nil {
		return nil, fmt.Errorf("%w: invalid cargo message set: %w", ErrInvalidEnvelope, err)
	}
	return &CargoMessageSet{Messages: messages}, nil
}

// UnwrapPayload расшифровывает payload cargo.
//
// Ключ сессии отправителя возвращается только для конвертов SessionEnvelope.
// Недоступность хранилища возвращается как *PrivateKeyStoreError.
func (c *Cargo) UnwrapPayload(ctx context.Context, store PrivateKeyStore) (*CargoMessageSet, *SessionKey, error) {
	env, err := DeserializeEnvelopedData(c.Payload)
	if err != nil {
		return nil, nil, err
	}

	plaintext, err := env.Decrypt(ctx, store)
	if err != nil {
		return nil, nil, err
	}

	set, err := DeserializeCargoMessageSet(plaintext)
	if err != nil {
		return nil, nil, err
	}

	if env.Kind != SessionEnvelope {
		return set, nil, nil
	}
	return set, &SessionKey{
		KeyID:        env.OriginatorKey.KeyID,
		PublicKeyDer: env.OriginatorKey.PublicKeyDer,
	}, nil
}
