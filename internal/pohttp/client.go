package pohttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	ContentTypeParcel    = "application/vnd.relaynet.parcel"
	HeaderGatewayAddress = "X-Relaynet-Gateway"

	defaultTimeout          = 30 * time.Second
	defaultFailureThreshold = 5
	defaultResetTimeout     = 30 * time.Second
)

var (
	// ErrInvalidParcel получатель отверг посылку; повторная доставка бессмысленна.
	ErrInvalidParcel = errors.New("parcel was rejected by the recipient")
	// ErrInvalidRecipient адрес получателя не является URL.
	ErrInvalidRecipient = errors.New("invalid recipient address")
)

// ClientConfig настройки PoHTTP-клиента.
type ClientConfig struct {
	// GatewayAddress собственный публичный адрес шлюза, передаётся получателю.
	GatewayAddress   string
	Timeout          time.Duration
	FailureThreshold uint32
	ResetTimeout     time.Duration
	HTTPClient       *http.Client
	Logger           *zap.Logger
}

// Client доставляет посылки получателям в Интернете по PoHTTP.
// На каждый хост заводится свой circuit breaker.
type Client struct {
	cfg  ClientConfig
	http *http.Client
	log  *zap.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewClient создаёт клиент; нулевые поля конфигурации заменяются значениями по умолчанию.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaultResetTimeout
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		cfg:      cfg,
		http:     httpClient,
		log:      log,
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// DeliverParcel отправляет сериализованную посылку на recipientAddress.
//
// Ответ 4xx с кодом отказа в посылке возвращает ошибку, оборачивающую
// ErrInvalidParcel. Остальные ошибки временные, включая открытый breaker.
func (c *Client) DeliverParcel(ctx context.Context, recipientAddress string, parcel []byte) error {
	endpoint, err := recipientURL(recipientAddress)
	if err != nil {
		return err
	}

	_, err = c.breaker(endpoint.Host).Execute(func() (any, error) {
		return nil, c.post(ctx, endpoint.String(), parcel)
	})
	return err
}

func (c *Client) post(ctx context.Context, endpoint string, parcel []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(parcel))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeParcel)
	if c.cfg.GatewayAddress != "" {
		req.Header.Set(HeaderGatewayAddress, c.cfg.GatewayAddress)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("pohttp request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case rejectsParcel(resp.StatusCode):
		return fmt.Errorf("%w: status %d", ErrInvalidParcel, resp.StatusCode)
	default:
		return fmt.Errorf("pohttp endpoint returned status %d", resp.StatusCode)
	}
}

func (c *Client) breaker(host string) *gobreaker.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cb, ok := c.breakers[host]; ok {
		return cb
	}

	threshold := c.cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        host,
		MaxRequests: 1,
		Timeout:     c.cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		// Отказ в посылке говорит о том, что хост жив.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidParcel)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("PoHTTP circuit breaker state changed",
				zap.String("host", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	c.breakers[host] = cb
	return cb
}

func rejectsParcel(status int) bool {
	switch status {
	case http.StatusBadRequest, http.StatusForbidden, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
		return true
	}
	return false
}

// recipientURL допускает адрес без схемы: такие адреса доставляются по https.
func recipientURL(address string) (*url.URL, error) {
	if !strings.Contains(address, "://") {
		address = "https://" + address
	}

	endpoint, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRecipient, err)
	}
	if endpoint.Scheme != "http" && endpoint.Scheme != "https" || endpoint.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidRecipient, address)
	}
	return endpoint, nil
}
