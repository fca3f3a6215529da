package blob

import (
	"context"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"consent-ledger/pkg/platform/sentinel"
)

func TestCompute(t *testing.T) {
	// sha256("")
	assert.Equal(t,
		ContentID("sha256-e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"),
		Compute(nil))
	assert.NotEqual(t, Compute([]byte("a")), Compute([]byte("b")))
}

func TestParseContentID(t *testing.T) {
	valid := Compute([]byte("consent document"))
	got, err := ParseContentID(" " + valid.String() + " ")
	require.NoError(t, err)
	assert.Equal(t, valid, got)

	for _, bad := range []string{
		"",
		"sha256-",
		"md5-" + string(valid)[7:],
		"sha256-" + string(valid)[7:70],
		"sha256-" + "ZZ" + string(valid)[9:],
		"sha256-E3B0C44298FC1C149AFBF4C8996FB92427AE41E4649B934CA495991B7852B855",
	} {
		_, err := ParseContentID(bad)
		assert.ErrorIs(t, err, sentinel.ErrInvalidInput, bad)
	}
}

// StoreSuite runs the same contract against each backend.
type StoreSuite struct {
	suite.Suite
	newStore func(t *testing.T) Store
	store    Store
	corrupt  func(cid ContentID, data []byte)
}

func (s *StoreSuite) SetupTest() {
	s.store = s.newStore(s.T())
}

func (s *StoreSuite) TestPutGetRoundTrip() {
	ctx := context.Background()
	data := []byte(`{"title":"consent form v1"}`)

	cid, err := s.store.Put(ctx, data)
	s.Require().NoError(err)
	s.Equal(Compute(data), cid)

	got, err := s.store.Get(ctx, cid)
	s.Require().NoError(err)
	s.Equal(data, got)
}

func (s *StoreSuite) TestPutIsIdempotent() {
	ctx := context.Background()
	first, err := s.store.Put(ctx, []byte("same"))
	s.Require().NoError(err)
	second, err := s.store.Put(ctx, []byte("same"))
	s.Require().NoError(err)
	s.Equal(first, second)
}

func (s *StoreSuite) TestGetUnknown() {
	_, err := s.store.Get(context.Background(), Compute([]byte("never stored")))
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *StoreSuite) TestGetRejectsCorruptedBytes() {
	if s.corrupt == nil {
		s.T().Skip("backend cannot be corrupted from the test")
	}
	ctx := context.Background()
	cid, err := s.store.Put(ctx, []byte("original"))
	s.Require().NoError(err)

	s.corrupt(cid, []byte("tampered"))

	_, err = s.store.Get(ctx, cid)
	s.ErrorIs(err, sentinel.ErrCorrupted)
}

func TestMemoryStore(t *testing.T) {
	st := &StoreSuite{}
	st.newStore = func(*testing.T) Store {
		m := NewMemory()
		st.corrupt = func(cid ContentID, data []byte) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.blobs[cid] = data
		}
		return m
	}
	suite.Run(t, st)
}

func TestBadgerStore(t *testing.T) {
	st := &StoreSuite{}
	st.newStore = func(t *testing.T) Store {
		b, err := OpenBadger("", nil)
		require.NoError(t, err)
		t.Cleanup(func() { _ = b.Close() })
		st.corrupt = func(cid ContentID, data []byte) {
			err := b.db.Update(func(txn *badger.Txn) error {
				return txn.Set(cid.key(), data)
			})
			require.NoError(t, err)
		}
		return b
	}
	suite.Run(t, st)
}

func TestBadgerStore_OnDisk(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	b, err := OpenBadger(dir, nil)
	require.NoError(t, err)
	cid, err := b.Put(ctx, []byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, b.Close())

	reopened, err := OpenBadger(dir, nil)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	got, err := reopened.Get(ctx, cid)
	require.NoError(t, err)
	assert.Equal(t, []byte("persisted"), got)
	assert.NoError(t, reopened.Health(ctx))
}
