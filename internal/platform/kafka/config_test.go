package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseBrokers(t *testing.T) {
	assert.Nil(t, ParseBrokers(""))
	assert.Equal(t, []string{"a:9092", "b:9092"}, ParseBrokers(" a:9092, ,b:9092 ,a:9092"))
}

func TestDefaultConfigs(t *testing.T) {
	p := DefaultProducerConfig([]string{"a:9092"})
	assert.Equal(t, []string{"a:9092"}, p.Brokers)
	assert.Equal(t, "all", p.Acks)

	c := DefaultConsumerConfig([]string{"a:9092"}, "ingest", "events")
	assert.Equal(t, "ingest", c.GroupID)
	assert.Equal(t, []string{"events"}, c.Topics)
	assert.True(t, c.FromStart)
}

func TestNewAdminRequiresBrokers(t *testing.T) {
	_, err := NewAdmin(nil)
	assert.Error(t, err)
}
