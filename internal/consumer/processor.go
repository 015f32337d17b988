// Package consumer pulls reconcile trigger messages from Kafka and dispatches
// them to the matching engine.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// wireFrameHeader is the Confluent framing prefix: magic byte plus a 4-byte
// big-endian schema ID.
const wireFrameHeader = 5

// Reader exposes the minimal kafka.Reader interface needed by the processor.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded trigger messages.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is a decoded trigger record. Payload is the JSON body with the
// Confluent frame stripped.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor drains one Kafka topic, handing each decoded record to the
// Handler. Offsets are committed only after the handler accepts a record, so
// transient handler failures are redelivered. Records that cannot decode are
// committed anyway; replaying them could never succeed.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor over the reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run blocks consuming the topic until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.step(ctx); err != nil {
			return err
		}
	}
}

// step fetches and settles a single record. It returns an error only when the
// run should stop; per-record failures are logged and absorbed.
func (p *Processor) step(ctx context.Context) error {
	record, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.logger.Printf("fetch failed: %v", err)
		return nil
	}

	trigger, err := decodeTrigger(record)
	if err != nil {
		p.logger.Printf("undecodable record (topic=%s, partition=%d, offset=%d): %v", record.Topic, record.Partition, record.Offset, err)
		recordDecodeError(record.Topic)
		p.commit(ctx, record, "poison record")
		return nil
	}

	if err := p.handler.Handle(ctx, trigger); err != nil {
		// Left uncommitted for redelivery.
		p.logger.Printf("handler rejected %s at offset %d: %v", trigger.EventType, trigger.Offset, err)
		recordHandlerError(trigger)
		return nil
	}

	if p.commit(ctx, record, trigger.EventType) {
		recordProcessed(trigger)
	}
	return nil
}

func (p *Processor) commit(ctx context.Context, record kafka.Message, what string) bool {
	if err := p.reader.CommitMessages(ctx, record); err != nil {
		p.logger.Printf("commit failed (%s, offset=%d): %v", what, record.Offset, err)
		return false
	}
	return true
}

// decodeTrigger strips the Confluent frame and lifts the event_type and
// schema_subject routing headers.
func decodeTrigger(record kafka.Message) (Message, error) {
	if len(record.Value) < wireFrameHeader {
		return Message{}, fmt.Errorf("value too short for wire frame: %d bytes", len(record.Value))
	}

	eventType, ok := headerValue(record, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	schemaSubject, _ := headerValue(record, "schema_subject")

	payload := json.RawMessage(append([]byte(nil), record.Value[wireFrameHeader:]...))

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:wireFrameHeader])),
		Payload:       payload,
	}, nil
}

func headerValue(record kafka.Message, key string) ([]byte, bool) {
	for _, header := range record.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
