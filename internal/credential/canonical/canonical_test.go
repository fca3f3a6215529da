package canonical

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CanonicalSuite struct {
	suite.Suite
}

func TestCanonicalSuite(t *testing.T) {
	suite.Run(t, new(CanonicalSuite))
}

func (s *CanonicalSuite) TestMarshal() {
	s.Run("member order does not matter", func() {
		type ab struct {
			B int    `json:"b"`
			A string `json:"a"`
		}
		fromStruct, err := Marshal(ab{B: 2, A: "x"})
		s.Require().NoError(err)
		fromMap, err := Marshal(map[string]any{"a": "x", "b": 2})
		s.Require().NoError(err)

		s.Equal(`{"a":"x","b":2}`, string(fromStruct))
		s.Equal(fromStruct, fromMap)
	})

	s.Run("nested objects are sorted too", func() {
		out, err := Marshal(map[string]any{"z": map[string]any{"y": 1, "x": []any{3, 1}}, "a": true})
		s.Require().NoError(err)
		s.Equal(`{"a":true,"z":{"x":[3,1],"y":1}}`, string(out))
	})

	s.Run("absent is omitted and null is kept", func() {
		type doc struct {
			Present  *string `json:"present"`
			Optional *string `json:"optional,omitempty"`
		}
		out, err := Marshal(doc{})
		s.Require().NoError(err)
		s.Equal(`{"present":null}`, string(out))
	})

	s.Run("html characters are not escaped", func() {
		out, err := Marshal(map[string]string{"k": "<a&b>"})
		s.Require().NoError(err)
		s.Equal(`{"k":"<a&b>"}`, string(out))
	})

	s.Run("number literals survive a decode cycle", func() {
		in := []byte(`{"big":123456789012345678901234567890,"f":1.50}`)
		generic, err := Normalize(in)
		s.Require().NoError(err)
		out, err := Marshal(generic)
		s.Require().NoError(err)
		s.Equal(`{"big":123456789012345678901234567890,"f":1.50}`, string(out))
	})

	s.Run("integers use shortest form", func() {
		out, err := Marshal(map[string]any{"u": uint64(7), "f": float64(7)})
		s.Require().NoError(err)
		s.Equal(`{"f":7,"u":7}`, string(out))
	})

	s.Run("rejects values json cannot represent", func() {
		_, err := Marshal(map[string]any{"c": make(chan int)})
		s.Error(err)
	})
}

func (s *CanonicalSuite) TestNormalizeRejectsTrailingData() {
	_, err := Normalize([]byte(`{"a":1} {"b":2}`))
	s.Error(err)
}

func (s *CanonicalSuite) TestDigest() {
	payload := []byte(`{"a":1}`)

	d1 := Digest(payload)
	d2 := Digest(payload)
	s.Len(d1, 32)
	s.Equal(d1, d2)

	tampered := []byte(`{"a":2}`)
	s.NotEqual(d1, Digest(tampered))
}

func (s *CanonicalSuite) TestTimes() {
	local := time.FixedZone("UTC+2", 2*60*60)
	t := time.Date(2026, 5, 1, 14, 30, 15, 987654321, local)

	formatted := FormatTime(t)
	s.Equal("2026-05-01T12:30:15Z", formatted)

	parsed, err := ParseTime(formatted)
	s.Require().NoError(err)
	s.True(parsed.Equal(Truncate(t)))

	_, err = ParseTime("yesterday")
	s.Error(err)

	for _, alt := range []string{
		"2026-05-01T12:30:15.9Z",
		"2026-05-01T14:30:15+02:00",
		"2026-05-01T12:30:15+00:00",
	} {
		_, err := ParseTime(alt)
		s.Error(err, alt)
	}
}

func (s *CanonicalSuite) TestMarshalIsStableAcrossCalls() {
	doc := map[string]any{"id": "urn:uuid:1", "n": json.Number("10")}
	first, err := Marshal(doc)
	s.Require().NoError(err)
	for range 5 {
		again, err := Marshal(doc)
		s.Require().NoError(err)
		s.Equal(first, again)
	}
}
