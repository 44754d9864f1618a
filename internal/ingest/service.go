// Package ingest turns Sample Records arriving over MQTT into stored rows.
package ingest

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/wilot/weather-station/internal/mqtt"
	"github.com/wilot/weather-station/internal/record"
	"github.com/wilot/weather-station/internal/storage"
	"github.com/wilot/weather-station/internal/utils"
)

const insertTimeout = 5 * time.Second

// MessageSource is anything that delivers MQTT messages to one handler.
type MessageSource interface {
	SetMessageHandler(h mqtt.MessageHandler)
}

// Stats counts messages since the service started.
type Stats struct {
	Received uint64 `json:"received"`
	Stored   uint64 `json:"stored"`
	Rejected uint64 `json:"rejected"`
	Failed   uint64 `json:"failed"`
}

type Service struct {
	repo   storage.SampleRepository
	logger *slog.Logger
	now    func() time.Time

	received atomic.Uint64
	stored   atomic.Uint64
	rejected atomic.Uint64
	failed   atomic.Uint64
}

func NewService(repo storage.SampleRepository, logger *slog.Logger) *Service {
	return &Service{repo: repo, logger: logger, now: time.Now}
}

// Register attaches the service to src.
func (s *Service) Register(src MessageSource) {
	src.SetMessageHandler(s.Handle)
}

// Handle decodes one payload and stores it. Payloads that are not a Sample
// Record in either layout are dropped with a warning.
func (s *Service) Handle(topic string, payload []byte) {
	s.received.Add(1)
	received := s.now()

	rec, layout, err := record.Decode(payload)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Warn("rejecting malformed payload",
			"topic", topic,
			"size", len(payload),
			"payload", utils.BytesToHex(payload),
			"error", err,
		)
		return
	}

	sample := storage.FromRecord(rec, layout, received)
	s.logger.Debug("decoded sample record", "topic", topic, "layout", layout, "record", rec)

	ctx, cancel := context.WithTimeout(context.Background(), insertTimeout)
	defer cancel()
	if err := s.repo.InsertSample(ctx, sample); err != nil {
		s.failed.Add(1)
		s.logger.Error("failed to store sample", "topic", topic, "error", err)
		return
	}
	s.stored.Add(1)
	s.logger.Info("stored sample", "measurement_time", sample.MeasurementTime, "layout", layout)
}

func (s *Service) Stats() Stats {
	return Stats{
		Received: s.received.Load(),
		Stored:   s.stored.Load(),
		Rejected: s.rejected.Load(),
		Failed:   s.failed.Load(),
	}
}
