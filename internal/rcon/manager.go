package rcon

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/bebewat/wrecksshop-main/internal/util"
)

// Manager caches one authenticated Client per server address. Sessions are
// established lazily on first use and reused until a command fails, at
// which point the session is discarded and redialed.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]*Client // addr -> session

	timeout    time.Duration
	attempts   int
	retryDelay time.Duration
	logger     zerolog.Logger
}

// ManagerOptions configures retry behavior for a Manager.
type ManagerOptions struct {
	Timeout    time.Duration
	Attempts   int
	RetryDelay time.Duration
}

// NewManager creates a Manager with the given retry policy. Zero-value
// options fall back to 10s timeout, 3 attempts, 1s delay.
func NewManager(opts ManagerOptions) *Manager {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 3
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Manager{
		clients:    make(map[string]*Client),
		timeout:    opts.Timeout,
		attempts:   opts.Attempts,
		retryDelay: opts.RetryDelay,
		logger:     util.ComponentLogger("rcon-manager"),
	}
}

// Execute runs a command on the server at addr, dialing and authenticating
// if no cached session exists. Transient failures invalidate the session
// and retry up to the configured attempt count. ErrAuth aborts immediately;
// retrying a bad password cannot succeed.
func (m *Manager) Execute(addr, password, command string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= m.attempts; attempt++ {
		client, err := m.session(addr, password)
		if err != nil {
			if errors.Is(err, ErrAuth) {
				m.logger.Error().Str("addr", addr).Msg("RCON authentication rejected")
				return "", err
			}
			lastErr = err
			m.logger.Warn().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("RCON connect failed")
			if attempt < m.attempts {
				time.Sleep(m.retryDelay)
			}
			continue
		}

		resp, err := client.Execute(command)
		if err == nil {
			return resp, nil
		}

		lastErr = err
		m.invalidate(addr, client)
		m.logger.Warn().Err(err).Str("addr", addr).Int("attempt", attempt).Msg("RCON command failed, session invalidated")
		if attempt < m.attempts {
			time.Sleep(m.retryDelay)
		}
	}

	return "", lastErr
}

// session returns the cached client for addr, dialing a new one if needed.
func (m *Manager) session(addr, password string) (*Client, error) {
	m.mu.RLock()
	client, ok := m.clients[addr]
	m.mu.RUnlock()
	if ok {
		return client, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	// Another goroutine may have dialed while we waited for the lock.
	if client, ok := m.clients[addr]; ok {
		return client, nil
	}

	client, err := Dial(addr, password, m.timeout)
	if err != nil {
		return nil, err
	}
	m.clients[addr] = client
	return client, nil
}

// invalidate drops a session from the cache, but only if it is still the
// cached one. A concurrent caller may already have replaced it.
func (m *Manager) invalidate(addr string, client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.clients[addr]; ok && cached == client {
		delete(m.clients, addr)
	}
	client.Close()
}

// Count returns the number of cached sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll closes every cached session. Called at shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for addr, client := range m.clients {
		client.Close()
		delete(m.clients, addr)
	}
	m.logger.Info().Msg("all RCON sessions closed")
}
