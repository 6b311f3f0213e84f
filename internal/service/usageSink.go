package service

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/scholarmark/scholarmark-api/internal/models"
	"github.com/scholarmark/scholarmark-api/internal/repository"
)

// DurableUsageSink persists admission decisions through a buffered channel
// and a background batch worker, so recording never blocks the admission
// path. Implements admission.UsageSink.
type DurableUsageSink struct {
	repo    *repository.UsageRecordRepository
	records chan models.UsageRecord
	stop    chan struct{}
}

func NewDurableUsageSink(repo *repository.UsageRecordRepository, bufferSize int) *DurableUsageSink {
	if bufferSize <= 0 {
		bufferSize = 1000
	}

	s := &DurableUsageSink{
		repo:    repo,
		records: make(chan models.UsageRecord, bufferSize),
		stop:    make(chan struct{}),
	}

	// Background worker to batch insert records
	go s.worker()

	return s
}

func (s *DurableUsageSink) worker() {
	batch := make([]*models.UsageRecord, 0, 100)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := s.repo.CreateBatch(context.Background(), batch); err != nil {
			log.Printf("Failed to insert usage records: %v", err)
		}
		batch = make([]*models.UsageRecord, 0, 100)
	}

	for {
		select {
		case record := <-s.records:
			r := record
			batch = append(batch, &r)

			// Insert when batch is full
			if len(batch) >= 100 {
				flush()
			}
		case <-ticker.C:
			// Periodically insert remaining records
			flush()
		case <-s.stop:
			flush()
			return
		}
	}
}

// Record queues one decision for persistence. Drops the record rather than
// blocking when the buffer is full.
func (s *DurableUsageSink) Record(userID uuid.UUID, operation string, cost int64, success bool, errorMessage string) {
	record := models.UsageRecord{
		Timestamp:    time.Now().UTC(),
		UserID:       userID,
		Operation:    operation,
		CostUnits:    cost,
		Success:      success,
		ErrorMessage: errorMessage,
	}

	select {
	case s.records <- record:
		// Successfully queued
	default:
		log.Printf("Usage record channel full, dropping record for user %s", userID)
	}
}

// Stop flushes pending records and stops the worker.
func (s *DurableUsageSink) Stop() {
	close(s.stop)
}
