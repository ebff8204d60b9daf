// Package store_refresher keeps the trade store current. It refreshes on a
// cron schedule and whenever a notification arrives on the refresh queue.
package store_refresher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/archon-research/stl-trade/internal/ports/outbound"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
)

// Refresher is the store operation driven by this service.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Config holds configuration for the refresher.
type Config struct {
	// Schedule is a standard cron expression or descriptor such as "@every 30s".
	// Empty disables scheduled refreshes.
	Schedule string

	// MaxMessages is the queue batch size.
	MaxMessages int

	// PollInterval is the pause between queue polls.
	PollInterval time.Duration

	// RefreshTimeout bounds a single refresh.
	RefreshTimeout time.Duration

	Logger *slog.Logger
}

// ConfigDefaults returns a config with default values.
func ConfigDefaults() Config {
	return Config{
		Schedule:       "@every 30s",
		MaxMessages:    10,
		PollInterval:   time.Second,
		RefreshTimeout: 20 * time.Second,
		Logger:         slog.Default(),
	}
}

// Notification is the optional payload of a refresh message.
type Notification struct {
	Reason string `json:"reason"`
	Group  string `json:"group,omitempty"`
}

// Service drives store refreshes.
type Service struct {
	config   Config
	store    Refresher
	consumer outbound.SQSConsumer

	// mu serialises refreshes so a slow scheduled run and a notification
	// never fetch at the same time.
	mu sync.Mutex

	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	logger *slog.Logger
}

// NewService creates a refresher. consumer may be nil to disable the queue.
func NewService(config Config, store Refresher, consumer outbound.SQSConsumer) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}

	defaults := ConfigDefaults()
	if config.MaxMessages == 0 {
		config.MaxMessages = defaults.MaxMessages
	}
	if config.PollInterval == 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RefreshTimeout == 0 {
		config.RefreshTimeout = defaults.RefreshTimeout
	}
	if config.Logger == nil {
		config.Logger = defaults.Logger
	}
	if config.Schedule != "" {
		if _, err := cron.ParseStandard(config.Schedule); err != nil {
			return nil, fmt.Errorf("invalid refresh schedule %q: %w", config.Schedule, err)
		}
	}

	logger := config.Logger.With("component", "store-refresher")
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug))

	return &Service{
		config:   config,
		store:    store,
		consumer: consumer,
		cron:     cron.New(cron.WithLogger(cronLogger), cron.WithChain(cron.SkipIfStillRunning(cronLogger))),
		logger:   logger,
	}, nil
}

// Start schedules refreshes and begins polling the queue.
func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(ctx)

	if s.config.Schedule != "" {
		if _, err := s.cron.AddFunc(s.config.Schedule, func() {
			s.refresh(s.ctx, "schedule")
		}); err != nil {
			s.cancel()
			return fmt.Errorf("scheduling refresh: %w", err)
		}
		s.cron.Start()
	}

	if s.consumer != nil {
		s.wg.Add(1)
		go s.processLoop()
	}

	s.logger.Info("store refresher started",
		"schedule", s.config.Schedule,
		"queue", s.consumer != nil)
	return nil
}

// Stop cancels polling and waits for running refreshes to finish.
func (s *Service) Stop() error {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
	s.logger.Info("store refresher stopped")
	return nil
}

func (s *Service) processLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.processMessages(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("error processing messages", "error", err)
			}
		}
	}
}

// processMessages coalesces a batch into a single refresh. Messages are
// deleted only after the refresh succeeds so a failed one is redelivered.
func (s *Service) processMessages(ctx context.Context) error {
	messages, err := s.consumer.ReceiveMessages(ctx, s.config.MaxMessages)
	if err != nil {
		return fmt.Errorf("receiving messages: %w", err)
	}
	if len(messages) == 0 {
		return nil
	}

	reason := "notification"
	for _, msg := range messages {
		var n Notification
		if err := json.Unmarshal([]byte(msg.Body), &n); err != nil {
			s.logger.Warn("ignoring malformed refresh notification", "messageId", msg.MessageID, "error", err)
			continue
		}
		if n.Reason != "" {
			reason = n.Reason
		}
	}

	if err := s.refresh(ctx, reason); err != nil {
		return err
	}

	var errs []error
	for _, msg := range messages {
		if err := s.consumer.DeleteMessage(ctx, msg.ReceiptHandle); err != nil {
			errs = append(errs, fmt.Errorf("deleting message %s: %w", msg.MessageID, err))
		}
	}
	return errors.Join(errs...)
}

// refresh runs one store refresh. A superseded refresh is not an error.
func (s *Service) refresh(ctx context.Context, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.config.RefreshTimeout)
	defer cancel()

	start := time.Now()
	err := s.store.Refresh(ctx)
	switch {
	case err == nil:
		s.logger.Debug("store refreshed", "reason", reason, "duration", time.Since(start))
		return nil
	case errors.Is(err, trade_store.ErrSuperseded):
		s.logger.Debug("refresh superseded", "reason", reason)
		return nil
	case errors.Is(err, trade_store.ErrNotInitialized):
		s.logger.Debug("store not initialized, skipping refresh", "reason", reason)
		return nil
	default:
		s.logger.Warn("store refresh failed", "reason", reason, "error", err)
		return fmt.Errorf("refreshing store: %w", err)
	}
}
