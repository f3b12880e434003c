package websocket

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"linknote-server/internal/domain"
	"linknote-server/internal/logging"
)

var ErrTooManyConnections = errors.New("too many connections for identity")

type Options struct {
	MaxConnPerIdentity int
	WriteWait          time.Duration
	PongWait           time.Duration
	PingPeriod         time.Duration
	MaxMessageSize     int64
}

// Manager fans record change events out to every connected admin editor, so
// someone holding an old bulk document learns it is stale before saving.
type Manager struct {
	mu             sync.RWMutex
	clients        map[string]*Client
	identityIndex  map[string]map[string]bool
	maxConnPerID   int
	writeWait      time.Duration
	pongWait       time.Duration
	pingPeriod     time.Duration
	maxMessageSize int64
	logger         logging.Logger
}

func NewManager(opts Options, logger logging.Logger) *Manager {
	if logger == nil {
		logger = logging.Nop()
	}
	if opts.MaxConnPerIdentity <= 0 {
		opts.MaxConnPerIdentity = 5
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxMessageSize <= 0 {
		opts.MaxMessageSize = 4096
	}
	return &Manager{
		clients:        make(map[string]*Client),
		identityIndex:  make(map[string]map[string]bool),
		maxConnPerID:   opts.MaxConnPerIdentity,
		writeWait:      opts.WriteWait,
		pongWait:       opts.PongWait,
		pingPeriod:     opts.PingPeriod,
		maxMessageSize: opts.MaxMessageSize,
		logger:         logger,
	}
}

// Register adds client and greets it. It fails when the identity already
// holds the maximum number of connections.
func (m *Manager) Register(client *Client) error {
	m.mu.Lock()
	if len(m.identityIndex[client.Identity]) >= m.maxConnPerID {
		m.mu.Unlock()
		return ErrTooManyConnections
	}
	if m.identityIndex[client.Identity] == nil {
		m.identityIndex[client.Identity] = make(map[string]bool)
	}
	m.clients[client.ID] = client
	m.identityIndex[client.Identity][client.ID] = true
	editors := len(m.clients)
	m.mu.Unlock()

	m.logger.Info("editor connected", "client", client.ID, "identity", client.Identity)

	hello, err := NewMessage(TypeHello, HelloPayload{ClientID: client.ID, Identity: client.Identity, Editors: editors})
	if err != nil {
		return err
	}
	m.sendTo(client, hello)
	return nil
}

func (m *Manager) unregister(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(client)
}

// removeLocked drops client and closes its send channel. Caller holds mu.
func (m *Manager) removeLocked(client *Client) {
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	delete(m.clients, client.ID)
	delete(m.identityIndex[client.Identity], client.ID)
	if len(m.identityIndex[client.Identity]) == 0 {
		delete(m.identityIndex, client.Identity)
	}
	close(client.Send)
	m.logger.Info("editor disconnected", "client", client.ID)
}

func (m *Manager) handleMessage(client *Client, raw []byte) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		m.logger.Debug("ignoring malformed message", "client", client.ID, "error", err)
		reply, _ := NewMessage(TypeError, ErrorPayload{Error: "malformed message"})
		m.sendTo(client, reply)
		return
	}

	switch msg.Type {
	case TypePing:
		reply, _ := NewMessage(TypePong, nil)
		m.sendTo(client, reply)
	default:
		reply, _ := NewMessage(TypeError, ErrorPayload{Error: "unsupported message type"})
		m.sendTo(client, reply)
	}
}

func (m *Manager) sendTo(client *Client, message *Message) {
	data, err := json.Marshal(message)
	if err != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.clients[client.ID]; !ok {
		return
	}
	select {
	case client.Send <- data:
	default:
		m.logger.Warn("send buffer full, dropping editor", "client", client.ID)
		m.removeLocked(client)
	}
}

// Broadcast sends message to every editor. Editors that cannot keep up are
// disconnected.
func (m *Manager) Broadcast(message *Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		select {
		case client.Send <- data:
		default:
			m.logger.Warn("send buffer full, dropping editor", "client", client.ID)
			m.removeLocked(client)
		}
	}
	return nil
}

// RecordsChanged satisfies service.ChangeNotifier.
func (m *Manager) RecordsChanged(event domain.ChangeEvent) {
	msg, err := NewMessage(TypeRecordsChanged, RecordsChangedPayload{
		Kind:    string(event.Kind),
		Actor:   event.Actor,
		Saved:   event.Saved,
		Deleted: event.Deleted,
	})
	if err != nil {
		m.logger.Error("failed to build change message", "error", err)
		return
	}
	if !event.At.IsZero() {
		msg.Timestamp = event.At
	}
	if err := m.Broadcast(msg); err != nil {
		m.logger.Error("failed to broadcast change", "error", err)
	}
}

func (m *Manager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

// CloseAll disconnects every editor, for shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, client := range m.clients {
		m.removeLocked(client)
	}
}
