package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/bashkirian/payment-health/pkg/models"
)

// KafkaConfig holds the consumer settings.
type KafkaConfig struct {
	Brokers     []string
	Topic       string
	GroupID     string
	PollTimeout time.Duration
}

// messageReader is the subset of *kafka.Reader the consumer needs.
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConsumer reads JSON transaction events from a topic and hands them to
// the aggregator. Offsets are committed after the event is queued; a message
// that cannot be queued is retried until it is, so later commits never skip it.
type KafkaConsumer struct {
	cfg       KafkaConfig
	reader    messageReader
	proc      Processor
	log       *slog.Logger
	poll      time.Duration
	retryBase time.Duration
	retryMax  time.Duration
}

func NewKafkaConsumer(cfg KafkaConfig, proc Processor, log *slog.Logger) (*KafkaConsumer, error) {
	if log == nil {
		return nil, errors.New("logger must not be nil")
	}
	if proc == nil {
		return nil, errors.New("processor must not be nil")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("at least one broker is required")
	}
	if strings.TrimSpace(cfg.Topic) == "" {
		return nil, errors.New("topic must not be empty")
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, errors.New("consumer group must not be empty")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		Topic:       cfg.Topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
	})
	return newKafkaConsumer(cfg, reader, proc, log), nil
}

func newKafkaConsumer(cfg KafkaConfig, reader messageReader, proc Processor, log *slog.Logger) *KafkaConsumer {
	poll := cfg.PollTimeout
	if poll <= 0 {
		poll = 5 * time.Second
	}
	return &KafkaConsumer{
		cfg:       cfg,
		reader:    reader,
		proc:      proc,
		log:       log,
		poll:      poll,
		retryBase: 100 * time.Millisecond,
		retryMax:  5 * time.Second,
	}
}

func (c *KafkaConsumer) Close() error {
	if c == nil || c.reader == nil {
		return nil
	}
	return c.reader.Close()
}

// Run blocks until ctx is cancelled or the reader is closed.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	c.log.Info("kafka consumer started",
		slog.String("topic", c.cfg.Topic),
		slog.String("group", c.cfg.GroupID),
		slog.String("brokers", strings.Join(c.cfg.Brokers, ",")),
		slog.Duration("poll_timeout", c.poll),
	)
	defer c.log.Info("kafka consumer stopped")

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		fetchCtx, cancel := context.WithTimeout(ctx, c.poll)
		msg, err := c.reader.FetchMessage(fetchCtx)
		cancel()
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue
			}
			if errors.Is(err, context.Canceled) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, kafka.ErrGroupClosed) {
				return nil
			}
			c.log.Error("kafka fetch failed", slog.Any("err", err))
			continue
		}

		if err := c.handle(ctx, msg); err != nil {
			// событие так и не поставлено в очередь, offset не коммитим
			return err
		}

		commitCtx, commitCancel := context.WithTimeout(ctx, c.poll)
		if err := c.reader.CommitMessages(commitCtx, msg); err != nil {
			if !(errors.Is(err, context.Canceled) && ctx.Err() != nil) {
				c.log.Error("kafka commit failed", slog.Any("err", err))
			}
		}
		commitCancel()
	}
}

// handle returns an error only when ctx ends before a valid event could be
// queued. Undecodable or invalid messages are logged and skipped.
func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	event, err := DecodeEvent(msg.Value)
	if err != nil {
		c.log.Warn("kafka message skipped", slog.Any("err", err), slog.Int64("offset", msg.Offset))
		return nil
	}

	wait := c.retryBase
	for attempt := 1; ; attempt++ {
		err := c.proc.ProcessEvent(ctx, event, "kafka")
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn("kafka event not queued, retrying",
			slog.Any("err", err),
			slog.Int64("offset", msg.Offset),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
		)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		wait = min(wait*2, c.retryMax)
	}
}

// DecodeEvent parses a JSON event and runs Prepare on it.
func DecodeEvent(raw []byte) (models.Event, error) {
	var e models.Event
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(&e); err != nil {
		return models.Event{}, fmt.Errorf("decode event payload: %w", err)
	}
	if err := Prepare(&e); err != nil {
		return models.Event{}, err
	}
	return e, nil
}
