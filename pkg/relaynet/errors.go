package relaynet

import (
	"errors"
	"fmt"
)

// === Ошибки ===

var (
	// ErrInvalidMessage сообщение корректно сериализовано, но нарушает правила RAMF
	// (срок действия, сертификат отправителя, адрес получателя).
	ErrInvalidMessage = errors.New("invalid RAMF message")

	// ErrInvalidEnvelope зашифрованный payload не удаётся расшифровать или разобрать.
	ErrInvalidEnvelope = errors.New("invalid enveloped data")

	// ErrUnknownKey в хранилище нет приватного ключа, на который зашифрован payload.
	ErrUnknownKey = errors.New("unknown private key")

	// ErrUnsupportedMessageType тип сообщения не подходит для данной операции.
	ErrUnsupportedMessageType = errors.New("unsupported message type")
)

// MalformedMessageError сообщение не удаётся разобрать. ID и SenderAddress
// заполнены, если их удалось восстановить до ошибки.
type MalformedMessageError struct {
	ID            string
	SenderAddress string
	Err           error
}

func (e *MalformedMessageError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("malformed RAMF message: %v", e.Err)
	}
	return fmt.Sprintf("malformed RAMF message %s: %v", e.ID, e.Err)
}

func (e *MalformedMessageError) Unwrap() error {
	return e.Err
}

// PrivateKeyStoreError хранилище приватных ключей недоступно.
// В отличие от ErrUnknownKey, повтор может завершиться успешно.
type PrivateKeyStoreError struct {
	Err error
}

func (e *PrivateKeyStoreError) Error() string {
	return fmt.Sprintf("private key store unavailable: %v", e.Err)
}

func (e *PrivateKeyStoreError) Unwrap() error {
	return e.Err
}

// IsPrivateKeyStoreError сообщает, вызвана ли err недоступностью хранилища ключей.
func IsPrivateKeyStoreError(err error) bool {
	var storeErr *PrivateKeyStoreError
	return errors.As(err, &storeErr)
}
