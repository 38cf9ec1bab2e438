// Package ingest validates incoming transaction events and feeds them to the
// aggregator from HTTP and Kafka.
package ingest

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/bashkirian/payment-health/pkg/models"
)

var ErrInvalidDate = errors.New("date is missing or not a valid timestamp")

// Processor is the write side of the aggregator.
type Processor interface {
	ProcessEvent(ctx context.Context, event models.Event, source string) error
}

// Prepare checks the event and fills in an ID when the producer did not send one.
func Prepare(e *models.Event) error {
	if !e.Date.Valid {
		return ErrInvalidDate
	}
	e.ID = strings.TrimSpace(e.ID)
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	return nil
}
