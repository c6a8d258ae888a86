package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/amirphl/orochi-attribution/config"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
)

// ConversionEvent is published once per persisted click-to-order match
type ConversionEvent struct {
	ClickID        string          `json:"click_id"`
	OrderID        string          `json:"order_id"`
	SellerID       string          `json:"seller_id"`
	RunID          string          `json:"run_id"`
	UserID         string          `json:"user_id"`
	CampaignID     *string         `json:"campaign_id,omitempty"`
	AdID           *string         `json:"ad_id,omitempty"`
	ItemID         string          `json:"item_id,omitempty"`
	ConfidenceTier string          `json:"confidence_tier"`
	MatchMethod    string          `json:"match_method"`
	MatchScore     int             `json:"match_score"`
	PaidAmount     decimal.Decimal `json:"paid_amount"`
	Currency       string          `json:"currency"`
	ClickedAt      time.Time       `json:"clicked_at"`
	ConvertedAt    time.Time       `json:"converted_at"`
}

// ConversionPublisher delivers conversion events to downstream consumers
type ConversionPublisher interface {
	PublishConversion(ctx context.Context, event ConversionEvent) error
	Close() error
}

// NewConversionPublisher returns a kafka publisher when events are enabled and a no-op otherwise
func NewConversionPublisher(cfg config.EventsConfig) ConversionPublisher {
	if !cfg.Enabled {
		return noopConversionPublisher{}
	}
	return NewKafkaConversionPublisher(cfg)
}

type kafkaConversionPublisher struct {
	writer       *kafka.Writer
	writeTimeout time.Duration
}

// NewKafkaConversionPublisher creates a publisher writing JSON events keyed by order id
func NewKafkaConversionPublisher(cfg config.EventsConfig) ConversionPublisher {
	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}
	return &kafkaConversionPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(cfg.Brokers...),
			Topic:                  cfg.Topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
			WriteTimeout:           writeTimeout,
		},
		writeTimeout: writeTimeout,
	}
}

func (p *kafkaConversionPublisher) PublishConversion(ctx context.Context, event ConversionEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal conversion event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.OrderID),
		Value: data,
		Time:  event.ConvertedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte("conversion")},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write conversion event for order %s: %w", event.OrderID, err)
	}
	return nil
}

func (p *kafkaConversionPublisher) Close() error {
	return p.writer.Close()
}

type noopConversionPublisher struct{}

func (noopConversionPublisher) PublishConversion(context.Context, ConversionEvent) error { return nil }
func (noopConversionPublisher) Close() error                                           { return nil }

// MockConversionPublisher records events in memory
type MockConversionPublisher struct {
	mu     sync.Mutex
	events []ConversionEvent
	Err    error
}

// NewMockConversionPublisher creates a recording publisher
func NewMockConversionPublisher() *MockConversionPublisher {
	return &MockConversionPublisher{}
}

func (m *MockConversionPublisher) PublishConversion(_ context.Context, event ConversionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockConversionPublisher) Close() error { return nil }

// GetEvents returns the published events
func (m *MockConversionPublisher) GetEvents() []ConversionEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]ConversionEvent(nil), m.events...)
}
