package strings

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitList(t *testing.T) {
	assert.Nil(t, SplitList(""))
	assert.Nil(t, SplitList(" , ,"))
	assert.Equal(t, []string{"a:9092", "b:9092"}, SplitList(" a:9092,b:9092 , a:9092"))
	assert.Equal(t, []string{"did:ethr:0xB", "did:ethr:0xA"}, SplitList("did:ethr:0xB,did:ethr:0xA"))
}
