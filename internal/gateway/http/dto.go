package http

// ErrorResponse представляет ответ с ошибкой.
// @Description Стандартный ответ при возникновении ошибки.
type ErrorResponse struct {
	// Error содержит описание ошибки.
	Error string `json:"error" example:"cargo is empty"`
}

// RelayCargoResponse ответ на принятый cargo.
// @Description Идентификатор сообщения в очереди crc-cargo.
type RelayCargoResponse struct {
	ID string `json:"id" example:"3f1c2b8e-6d0a-4a57-9f5e-1b2c3d4e5f60"`
}
