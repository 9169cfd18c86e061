package natsclient

import (
	"context"
	"sync"
)

// connectAttempt подключение в процессе установки. Все конкурентные
// вызовы Connect ждут одну и ту же попытку.
type connectAttempt struct {
	done   chan struct{}
	conn   Conn
	err    error
	closed bool
}

// connectionManager владеет единственным соединением для одного client id.
//
// Состояния: нет соединения (conn == nil, pending == nil), подключение
// (pending != nil), подключено (conn != nil). Переходы выполняются под mu.
type connectionManager struct {
	dialer Dialer
	cfg    DialConfig

	mu      sync.Mutex
	conn    Conn
	pending *connectAttempt
	// refs число пользователей каждого соединения, взятого через Acquire.
	refs map[Conn]int
}

func newConnectionManager(dialer Dialer, cfg DialConfig) *connectionManager {
	return &connectionManager{dialer: dialer, cfg: cfg, refs: make(map[Conn]int)}
}

// Connect возвращает закешированное соединение или подключается.
// Если ctx завершится раньше подключения, попытка продолжится для остальных ожидающих.
func (m *connectionManager) Connect(ctx context.Context) (Conn, error) {
	m.mu.Lock()
	if m.conn != nil {
		conn := m.conn
		m.mu.Unlock()
		return conn, nil
	}

	attempt := m.pending
	if attempt == nil {
		attempt = &connectAttempt{done: make(chan struct{})}
		m.pending = attempt
		go m.dial(attempt)
	}
	m.mu.Unlock()

	select {
	case <-attempt.done:
		return attempt.conn, attempt.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (m *connectionManager) dial(attempt *connectAttempt) {
	cfg := m.cfg
	cfg.OnClose = func() { m.forget(attempt) }

	conn, err := m.dialer.Dial(context.Background(), cfg)

	m.mu.Lock()
	m.pending = nil
	attempt.conn, attempt.err = conn, err
	if err == nil && !attempt.closed {
		m.conn = conn
	}
	m.mu.Unlock()

	close(attempt.done)
}

// forget сбрасывает кеш после закрытия соединения, чтобы следующий Connect
// открыл новое.
func (m *connectionManager) forget(attempt *connectAttempt) {
	m.mu.Lock()
	defer m.mu.Unlock()

	attempt.closed = true
	if m.conn != nil && m.conn == attempt.conn {
		m.conn = nil
	}
}

// Acquire как Connect, но учитывает пользователя соединения: оно не будет
// закрыто, пока каждый Acquire не получит свой Release.
func (m *connectionManager) Acquire(ctx context.Context) (Conn, error) {
	for {
		conn, err := m.Connect(ctx)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		if m.conn == conn {
			m.refs[conn]++
			m.mu.Unlock()
			return conn, nil
		}
		m.mu.Unlock()
		// Соединение закрыли между Connect и захватом, подключаемся снова.
	}
}

// Release отпускает conn. Последний пользователь закрывает соединение
// и убирает его из кеша, не дожидаясь уведомления транспорта о закрытии.
func (m *connectionManager) Release(conn Conn) error {
	m.mu.Lock()
	if m.refs[conn] > 1 {
		m.refs[conn]--
		m.mu.Unlock()
		return nil
	}
	delete(m.refs, conn)
	if m.conn == conn {
		m.conn = nil
	}
	m.mu.Unlock()

	return conn.Close()
}

// Close закрывает текущее соединение, если оно есть.
func (m *connectionManager) Close() error {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	clear(m.refs)
	m.mu.Unlock()

	if conn == nil {
		return nil
	}
	return conn.Close()
}
