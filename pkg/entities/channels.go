// Package entities содержит общие для процессов шлюза имена и сущности.
package entities

// Каналы потокового брокера.
const (
	// ChannelCRCCargo входящие cargo от пиров.
	ChannelCRCCargo = "crc-cargo"
	// ChannelCRCParcels посылки для доставки в интернет через PoHTTP.
	ChannelCRCParcels = "crc-parcels"
	// ChannelPDCParcelPrefix посылки, ждущие отправки конкретному пиру;
	// полное имя канала: ChannelPDCParcelPrefix + адрес пира.
	ChannelPDCParcelPrefix = "pdc-parcel."
)

// Группа очереди и durable-имя воркеров.
const (
	WorkerQueue   = "worker"
	WorkerDurable = "worker"
)

// PDCParcelChannel возвращает канал посылок для пира peerGatewayAddress.
func PDCParcelChannel(peerGatewayAddress string) string {
	return ChannelPDCParcelPrefix + peerGatewayAddress
}
