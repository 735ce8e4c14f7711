// Package telemetry sends the outbound /heartbeat POST to a configured
// external watchdog URL every 60s (spec §6 "Outbound telemetry").
// Failure is logged but never fatal: a watchdog outage must not take
// down the engine that is supposed to be watched.
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HeartbeatSender POSTs a small JSON body to a watchdog URL on a fixed
// interval until its context is canceled.
type HeartbeatSender struct {
	logger   *zap.Logger
	url      string
	interval time.Duration
	client   *http.Client
}

// NewHeartbeatSender creates a sender; interval defaults to 60s.
func NewHeartbeatSender(logger *zap.Logger, url string, interval time.Duration) *HeartbeatSender {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &HeartbeatSender{
		logger:   logger.Named("telemetry.heartbeat"),
		url:      url,
		interval: interval,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type heartbeatPayload struct {
	Timestamp time.Time `json:"timestamp"`
	Status    string    `json:"status"`
}

// Run sends one heartbeat immediately, then on every tick, until ctx is
// canceled. The URL is never empty when Run is called (callers should
// skip starting the sender when no watchdog is configured).
func (s *HeartbeatSender) Run(ctx context.Context) {
	s.send(ctx)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.send(ctx)
		}
	}
}

func (s *HeartbeatSender) send(ctx context.Context) {
	body, _ := json.Marshal(heartbeatPayload{Timestamp: time.Now(), Status: "alive"})
	reqCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		s.logger.Warn("failed to build heartbeat request", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("heartbeat post failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		s.logger.Warn("heartbeat post rejected", zap.Int("status", resp.StatusCode))
	}
}
