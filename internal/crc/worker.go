// Package crc принимает cargo от пиров (Cargo Relay Connection): расшифровывает
// их, сохраняет вложенные посылки и применяет подтверждения доставки.
package crc

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/internal/parcelstore"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities"
	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/parcel"
	natsclient "github.com/Alexey-zaliznuak/relaygate/pkg/nats"
	"github.com/Alexey-zaliznuak/relaygate/pkg/relaynet"
)

// Streaming клиент брокера, через который воркер получает cargo
// и публикует посылки.
type Streaming interface {
	MakeQueueConsumer(
		ctx context.Context,
		channel, queue, durableName, clientIDSuffix string,
	) iter.Seq2[*natsclient.QueueMessage, error]
	PublishMessage(ctx context.Context, data []byte, channel, clientIDSuffix string) error
	Disconnect()
}

// ParcelStore хранилище посылок.
type ParcelStore interface {
	StoreEndpointBoundParcel(
		ctx context.Context,
		p *relaynet.Parcel,
		raw []byte,
		peerGatewayAddress string,
		records parcel.CollectionStorage,
		publisher parcelstore.MessagePublisher,
	) (string, error)
	DeleteGatewayBoundParcel(
		ctx context.Context,
		parcelID, senderPrivateAddress, recipientAddress, peerGatewayAddress string,
	) error
}

// Worker обрабатывает очередь crc-cargo по одному cargo за раз.
type Worker struct {
	Name        string
	Streaming   Streaming
	PrivateKeys relaynet.PrivateKeyStore
	PublicKeys  relaynet.PublicKeyStore
	Parcels     ParcelStore
	Records     parcel.CollectionStorage
	Logger      *zap.Logger
	// Now источник времени для проверки cargo; по умолчанию time.Now.
	Now func() time.Time
}

// Run обрабатывает cargo, пока не отменён ctx.
//
// Ошибка хранилищ возвращается, а cargo, на котором она произошла,
// остаётся неподтверждённым: брокер доставит его повторно.
func (w *Worker) Run(ctx context.Context) error {
	log := w.Logger.With(zap.String("worker", w.Name))
	defer w.Streaming.Disconnect()

	cargoes := w.Streaming.MakeQueueConsumer(ctx, entities.ChannelCRCCargo, entities.WorkerQueue, entities.WorkerDurable, "")
	for message, err := range cargoes {
		if err != nil {
			return fmt.Errorf("failed to consume cargo: %w", err)
		}

		if err := w.processCargo(ctx, message.Data, log); err != nil {
			return err
		}

		if err := message.Ack(); err != nil {
			return fmt.Errorf("failed to ack cargo: %w", err)
		}
	}

	return nil
}

func (w *Worker) processCargo(ctx context.Context, raw []byte, log *zap.Logger) error {
	cargo, err := relaynet.DeserializeCargo(raw)
	if err != nil {
		fields := []zap.Field{zap.Error(err)}
		var malformed *relaynet.MalformedMessageError
		if errors.As(err, &malformed) {
			fields = append(fields,
				zap.String("cargoId", malformed.ID),
				zap.String("peerGatewayAddress", malformed.SenderAddress),
			)
		}
		log.Info("Cargo is malformed", fields...)
		return nil
	}

	peerGatewayAddress := cargo.SenderAddress()
	log = log.With(
		zap.String("cargoId", cargo.ID),
		zap.String("peerGatewayAddress", peerGatewayAddress),
	)

	if err := cargo.Validate(w.now()); err != nil {
		log.Info("Cargo is malformed", zap.Error(err))
		return nil
	}

	messageSet, sessionKey, err := cargo.UnwrapPayload(ctx, w.PrivateKeys)
	if err != nil {
		if relaynet.IsPrivateKeyStoreError(err) {
			return fmt.Errorf("failed to unwrap cargo %s: %w", cargo.ID, err)
		}
		log.Info("Cargo payload is invalid", zap.Error(err))
		return nil
	}

	if sessionKey != nil {
		creationTime := cargo.CreationDate.Truncate(time.Second)
		if err := w.PublicKeys.SaveSessionKey(ctx, *sessionKey, peerGatewayAddress, creationTime); err != nil {
			return fmt.Errorf("failed to save session key of %s: %w", peerGatewayAddress, err)
		}
	}

	for _, item := range messageSet.Messages {
		if err := w.processItem(ctx, item, peerGatewayAddress, log); err != nil {
			return err
		}
	}

	return nil
}

func (w *Worker) processItem(ctx context.Context, raw []byte, peerGatewayAddress string, log *zap.Logger) error {
	item, err := relaynet.DeserializeCargoMessage(raw)
	if err != nil {
		log.Info("Cargo contains an invalid message", zap.Error(err))
		return nil
	}

	switch message := item.(type) {
	case *relaynet.Parcel:
		return w.storeParcel(ctx, message, raw, peerGatewayAddress, log)

	case *relaynet.ParcelCollectionAck:
		err := w.Parcels.DeleteGatewayBoundParcel(
			ctx,
			message.ParcelID,
			message.SenderEndpointPrivateAddress,
			message.RecipientEndpointAddress,
			peerGatewayAddress,
		)
		if err != nil {
			return fmt.Errorf("failed to delete collected parcel %s: %w", message.ParcelID, err)
		}
		log.Debug("Parcel collection was acknowledged", zap.String("parcelId", message.ParcelID))
	}

	return nil
}

func (w *Worker) storeParcel(ctx context.Context, p *relaynet.Parcel, raw []byte, peerGatewayAddress string, log *zap.Logger) error {
	log = log.With(
		zap.String("parcelId", p.ID),
		zap.String("parcelSenderAddress", p.SenderAddress()),
	)

	key, err := w.Parcels.StoreEndpointBoundParcel(ctx, p, raw, peerGatewayAddress, w.Records, w.Streaming)
	switch {
	case errors.Is(err, relaynet.ErrInvalidMessage):
		log.Info("Parcel is invalid", zap.Error(err))
	case err != nil:
		return fmt.Errorf("failed to store parcel %s: %w", p.ID, err)
	case key == "":
		log.Debug("Ignoring previously processed parcel")
	default:
		log.Debug("Parcel was stored", zap.String("parcelObjectKey", key))
	}

	return nil
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}
