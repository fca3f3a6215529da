package blob

import (
	"bytes"
	"context"
	"sync"

	"consent-ledger/pkg/platform/sentinel"
)

type Memory struct {
	mu    sync.RWMutex
	blobs map[ContentID][]byte
}

func NewMemory() *Memory {
	return &Memory{blobs: make(map[ContentID][]byte)}
}

func (m *Memory) Put(_ context.Context, data []byte) (ContentID, error) {
	cid := Compute(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[cid]; !ok {
		m.blobs[cid] = bytes.Clone(data)
	}
	return cid, nil
}

func (m *Memory) Get(_ context.Context, cid ContentID) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.blobs[cid]
	m.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return verify(cid, bytes.Clone(data))
}
