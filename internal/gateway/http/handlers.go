package http

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"

	"go.uber.org/zap"

	"github.com/Alexey-zaliznuak/relaygate/pkg/entities/gateway"
	"github.com/Alexey-zaliznuak/relaygate/pkg/logger"
)

const (
	contentTypeCargo  = "application/vnd.relaynet.cargo"
	contentTypeParcel = "application/vnd.relaynet.parcel"

	// RAMF ограничивает payload 8 MiB; остальное запас на заголовки и подпись.
	maxBodySize = 9 << 20
)

// healthCheck godoc
// @Summary		Health check
// @Description	Проверка работоспособности сервиса
// @Tags		Health
// @Produce		json
// @Success		200	{object}	map[string]string
// @Router		/health [get]
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// === Helpers ===

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, ErrorResponse{Error: msg})
}

// readBody читает тело запроса с типом contentType. При ошибке ответ уже записан.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request, contentType string) ([]byte, bool) {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != contentType {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be "+contentType)
		return nil, false
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.writeError(w, http.StatusRequestEntityTooLarge, "payload is too large")
			return nil, false
		}
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}

	return body, true
}

// === Cargo ===

// relayCargo godoc
// @Summary		Принять cargo
// @Description	Ставит cargo пира в очередь обработки crc-cargo
// @Tags		Cargo
// @Accept		application/vnd.relaynet.cargo
// @Produce		json
// @Success		202	{object}	RelayCargoResponse
// @Failure		400	{object}	ErrorResponse
// @Failure		415	{object}	ErrorResponse
// @Failure		429	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router		/cargo [post]
func (s *Server) relayCargo(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, contentTypeCargo)
	if !ok {
		return
	}
	if len(body) == 0 {
		s.writeError(w, http.StatusBadRequest, "cargo is empty")
		return
	}

	id, err := s.gateway.RelayCargo(r.Context(), body)
	if err != nil {
		logger.GetFromContext(r.Context()).Error("Failed to queue cargo", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "cargo could not be queued; please try again later")
		return
	}

	s.writeJSON(w, http.StatusAccepted, RelayCargoResponse{ID: id})
}

// === PoHTTP ===

// pohttpInfo godoc
// @Summary		Проверка PoHTTP endpoint
// @Tags		PoHTTP
// @Produce		plain
// @Success		200	{string}	string
// @Router		/pohttp [get]
func (s *Server) pohttpInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		io.WriteString(w, "Success! This PoHTTP endpoint for the gateway works.")
	}
}

func (s *Server) pohttpMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "HEAD, GET, POST")
	w.WriteHeader(http.StatusMethodNotAllowed)
}

// receiveParcel godoc
// @Summary		Принять посылку по PoHTTP
// @Description	Сохраняет посылку для частной конечной точки и ставит её в очередь шлюза пира
// @Tags		PoHTTP
// @Accept		application/vnd.relaynet.parcel
// @Produce		json
// @Success		202	{object}	map[string]string
// @Failure		400	{object}	ErrorResponse
// @Failure		415	{object}	ErrorResponse
// @Failure		429	{object}	ErrorResponse
// @Failure		500	{object}	ErrorResponse
// @Router		/pohttp [post]
func (s *Server) receiveParcel(w http.ResponseWriter, r *http.Request) {
	body, ok := s.readBody(w, r, contentTypeParcel)
	if !ok {
		return
	}

	err := s.gateway.ReceiveParcel(r.Context(), body)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusAccepted, map[string]string{})
	case errors.Is(err, gateway.ErrInvalidParcel):
		s.writeError(w, http.StatusBadRequest, "Payload is not a valid RAMF-serialized parcel")
	case errors.Is(err, gateway.ErrUnauthorizedParcel):
		s.writeError(w, http.StatusBadRequest, "Parcel sender is not authorized")
	default:
		logger.GetFromContext(r.Context()).Error("Failed to store parcel", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "Parcel could not be stored; please try again later")
	}
}
