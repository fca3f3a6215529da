package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kerr"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Admin provisions topics and reports broker health.
type Admin struct {
	client  *kgo.Client
	adm     *kadm.Client
	timeout time.Duration
}

func NewAdmin(brokers []string) (*Admin, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers not configured")
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("create kafka admin client: %w", err)
	}
	return &Admin{client: client, adm: kadm.NewClient(client), timeout: 2 * time.Second}, nil
}

// EnsureTopic creates topic with the broker's default partition count and
// replication factor. An existing topic is left as is.
func (a *Admin) EnsureTopic(ctx context.Context, topic string) error {
	resps, err := a.adm.CreateTopics(ctx, -1, -1, nil, topic)
	if err != nil {
		return fmt.Errorf("create topic %s: %w", topic, err)
	}
	resp, ok := resps[topic]
	if !ok {
		return fmt.Errorf("create topic %s: missing from response", topic)
	}
	if resp.Err != nil && !errors.Is(resp.Err, kerr.TopicAlreadyExists) {
		return fmt.Errorf("create topic %s: %w", topic, resp.Err)
	}
	return nil
}

// Check returns nil when the cluster reports at least one broker.
func (a *Admin) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	brokers, err := a.adm.ListBrokers(ctx)
	if err != nil {
		return fmt.Errorf("list kafka brokers: %w", err)
	}
	if len(brokers) == 0 {
		return errors.New("no kafka brokers reachable")
	}
	return nil
}

func (a *Admin) Name() string {
	return "kafka"
}

func (a *Admin) Close() {
	a.client.Close()
}
