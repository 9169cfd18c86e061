package gateway

import (
	"context"
	"errors"
)

var (
	// ErrInvalidParcel тело запроса не является RAMF-посылкой.
	ErrInvalidParcel = errors.New("payload is not a valid RAMF-serialized parcel")
	// ErrUnauthorizedParcel посылка не прошла проверку или не указывает шлюз пира.
	ErrUnauthorizedParcel = errors.New("parcel is not authorized")
)

// Gateway входная точка шлюза: принимает cargo от пиров
// и посылки из Интернета для частных конечных точек.
type Gateway interface {
	// RelayCargo ставит cargo в очередь crc-cargo и возвращает id сообщения.
	RelayCargo(ctx context.Context, cargo []byte) (string, error)
	// ReceiveParcel сохраняет посылку для доставки пиру. Ошибки проверки
	// оборачивают ErrInvalidParcel или ErrUnauthorizedParcel.
	ReceiveParcel(ctx context.Context, parcel []byte) error
	GetConfig() *GatewayConfig
}
