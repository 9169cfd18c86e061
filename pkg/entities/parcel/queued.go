package parcel

import "time"

// QueuedInternetBoundMessage сообщение канала crc-parcels: посылка
// сохранена и ждёт доставки получателю по PoHTTP.
type QueuedInternetBoundMessage struct {
	ParcelObjectKey        string    `json:"parcelObjectKey"`
	ParcelRecipientAddress string    `json:"parcelRecipientAddress"`
	ParcelExpiryDate       time.Time `json:"parcelExpiryDate"`
}

// Expired сообщает, истёк ли срок жизни посылки к моменту now.
func (m QueuedInternetBoundMessage) Expired(now time.Time) bool {
	return !m.ParcelExpiryDate.After(now)
}

// QueuedGatewayBoundMessage сообщение канала pdc-parcel.<peer>: посылка
// сохранена и ждёт отправки пиру.
type QueuedGatewayBoundMessage struct {
	ParcelObjectKey  string    `json:"parcelObjectKey"`
	ParcelID         string    `json:"parcelId"`
	ParcelExpiryDate time.Time `json:"parcelExpiryDate"`
}
