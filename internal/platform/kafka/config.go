// Package kafka holds the event-stream plumbing shared by the audit sink
// and the audit ingest consumer.
package kafka

import (
	"time"

	platformstrings "consent-ledger/pkg/platform/strings"
)

// ProducerConfig holds configuration for the ledger event producer.
type ProducerConfig struct {
	Brokers         []string
	Acks            string
	Retries         int
	DeliveryTimeout time.Duration
}

// ConsumerConfig holds configuration for the audit ingest consumer.
type ConsumerConfig struct {
	Brokers []string
	GroupID string
	Topics  []string
	// FromStart makes a new group begin at the earliest offset.
	FromStart bool
}

func DefaultProducerConfig(brokers []string) ProducerConfig {
	return ProducerConfig{
		Brokers:         brokers,
		Acks:            "all",
		Retries:         3,
		DeliveryTimeout: 30 * time.Second,
	}
}

func DefaultConsumerConfig(brokers []string, groupID string, topics ...string) ConsumerConfig {
	return ConsumerConfig{
		Brokers:   brokers,
		GroupID:   groupID,
		Topics:    topics,
		FromStart: true,
	}
}

// ParseBrokers splits a comma separated broker list, dropping blanks and repeats.
func ParseBrokers(raw string) []string {
	return platformstrings.SplitList(raw)
}
