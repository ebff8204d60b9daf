package http

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
)

// StreamConfig holds the timing of the state stream.
type StreamConfig struct {
	// PollInterval is how often the snapshot is checked for changes.
	PollInterval time.Duration

	// PingInterval is how often the server pings the client.
	PingInterval time.Duration

	// PongTimeout closes the stream when no pong arrives in time.
	PongTimeout time.Duration

	// WriteTimeout bounds a single frame write.
	WriteTimeout time.Duration
}

// StreamConfigDefaults returns default stream timing.
func StreamConfigDefaults() StreamConfig {
	return StreamConfig{
		PollInterval: time.Second,
		PingInterval: 30 * time.Second,
		PongTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func (c StreamConfig) withDefaults() StreamConfig {
	d := StreamConfigDefaults()
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = d.PongTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	return c
}

// Clients only send control frames.
const maxClientMessage = 512

// stateKey identifies a published snapshot. The store replaces the active
// group and summary on every commit, so pointer identity is enough.
type stateKey struct {
	initialized bool
	fetchedAt   time.Time
	active      *entity.ActiveGroup
	summary     *entity.AccountSummary
}

func keyOf(v inbound.StateView) stateKey {
	return stateKey{
		initialized: v.Initialized,
		fetchedAt:   v.FetchedAt,
		active:      v.ActiveGroup,
		summary:     v.AccountSummary,
	}
}

// Stream upgrades to a websocket and pushes the state on connect and after
// every change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied.
		h.logger.Debug("websocket upgrade failed", "requestId", requestID(r), "error", err)
		return
	}
	defer conn.Close()

	cfg := h.stream
	logger := h.logger.With("requestId", requestID(r))
	logger.Debug("stream opened")

	conn.SetReadLimit(maxClientMessage)
	if err := conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout)); err != nil {
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.PongTimeout))
	})

	// The reader only drives control frames and detects the close.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var last stateKey
	sent := false
	push := func() error {
		view := h.service.State()
		key := keyOf(view)
		if sent && key == last {
			return nil
		}
		if err := conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout)); err != nil {
			return err
		}
		if err := conn.WriteJSON(newStateResponse(view)); err != nil {
			return err
		}
		last, sent = key, true
		return nil
	}

	if err := push(); err != nil {
		logger.Debug("stream write failed", "error", err)
		return
	}

	poll := time.NewTicker(cfg.PollInterval)
	defer poll.Stop()
	ping := time.NewTicker(cfg.PingInterval)
	defer ping.Stop()

	for {
		select {
		case <-closed:
			logger.Debug("stream closed by client")
			return
		case <-poll.C:
			if err := push(); err != nil {
				logger.Debug("stream write failed", "error", err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				logger.Debug("stream ping failed", "error", err)
				return
			}
		}
	}
}
