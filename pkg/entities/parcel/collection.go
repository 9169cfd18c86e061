// Package parcel описывает учёт посылок, принятых от пиров.
package parcel

import (
	"context"
	"time"
)

// Collection запись о том, что посылка уже принята от пира.
// Хранится до истечения срока жизни посылки и защищает от повторной
// обработки при повторной доставке cargo.
type Collection struct {
	ParcelID                     string
	SenderEndpointPrivateAddress string
	RecipientEndpointAddress     string
	PeerGatewayPrivateAddress    string
	ParcelExpiryDate             time.Time
}

// CollectionStorage хранилище записей о принятых посылках.
type CollectionStorage interface {
	// HasParcelCollection сообщает, была ли посылка уже принята.
	HasParcelCollection(ctx context.Context, collection Collection) (bool, error)
	// RecordParcelCollection записывает посылку как принятую.
	// Повторная запись не ошибка.
	RecordParcelCollection(ctx context.Context, collection Collection) error
}
