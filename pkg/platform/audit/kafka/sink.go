// Package kafka ships audit events to a Kafka topic so downstream consumers
// (compliance archive, ops dashboards) can subscribe to the transition
// stream.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	audit "aidledger/pkg/platform/audit"
)

// Sink produces one record per audit event, keyed by donation ID so all
// transitions of a donation land in the same partition in order.
type Sink struct {
	client *kgo.Client
	topic  string
}

// payload is the wire form published to Kafka.
type payload struct {
	ID              string `json:"id"`
	Category        string `json:"category"`
	Timestamp       string `json:"timestamp"`
	DonationID      uint64 `json:"donation_id"`
	Action          string `json:"action"`
	Partner         string `json:"partner,omitempty"`
	Amount          uint64 `json:"amount,omitempty"`
	Sponsor         string `json:"sponsor,omitempty"`
	ApproverLabel   string `json:"approver_label,omitempty"`
	Beneficiary     string `json:"beneficiary,omitempty"`
	MerchantLabel   string `json:"merchant_label,omitempty"`
	Value           uint64 `json:"value,omitempty"`
	MerchantAccount string `json:"merchant_account,omitempty"`
	RequestID       string `json:"request_id,omitempty"`
}

// NewSink connects to the given brokers. The caller owns the sink and must
// Close it on shutdown.
func NewSink(brokers []string, topic string) (*Sink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Sink{client: client, topic: topic}, nil
}

// Append publishes one event synchronously. The publisher treats sink
// failures as non-fatal, so a broker outage never blocks a transition.
func (s *Sink) Append(ctx context.Context, event audit.Event) error {
	b, err := json.Marshal(toPayload(event))
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	record := &kgo.Record{
		Topic: s.topic,
		Key:   []byte(event.DonationID.String()),
		Value: b,
	}
	if err := s.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("produce audit event: %w", err)
	}
	return nil
}

// Close flushes buffered records and releases the client.
func (s *Sink) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.client.Flush(ctx)
	s.client.Close()
}

func toPayload(event audit.Event) payload {
	return payload{
		ID:              uuid.NewString(),
		Category:        string(event.Category),
		Timestamp:       event.Timestamp.Format(time.RFC3339Nano),
		DonationID:      uint64(event.DonationID),
		Action:          event.Action,
		Partner:         event.Partner,
		Amount:          event.Amount,
		Sponsor:         event.Sponsor.String(),
		ApproverLabel:   event.ApproverLabel,
		Beneficiary:     event.Beneficiary.String(),
		MerchantLabel:   event.MerchantLabel,
		Value:           event.Value,
		MerchantAccount: event.MerchantAccount.String(),
		RequestID:       event.RequestID,
	}
}
