package tracer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestKeyValues(t *testing.T) {
	assert.Nil(t, keyValues(nil))

	got := keyValues([]Attribute{
		Uint64(AttrConsentID, 7),
		Uint64(AttrStudyID, math.MaxUint64),
		String(AttrProofType, "token"),
		{Key: "ignored", Value: struct{}{}},
	})
	assert.Equal(t, []attribute.KeyValue{
		attribute.Int64(AttrConsentID, 7),
		attribute.String(AttrStudyID, "18446744073709551615"),
		attribute.String(AttrProofType, "token"),
	}, got)
}
