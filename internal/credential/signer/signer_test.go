package signer

//go:generate mockgen -source=signer.go -destination=mocks/mocks.go -package=mocks Signer

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"consent-ledger/internal/credential/signer/mocks"
	"consent-ledger/internal/identity"
	dErrors "consent-ledger/pkg/domain-errors"
)

type SignerSuite struct {
	suite.Suite
	signer *Secp256k1
	digest []byte
}

func TestSignerSuite(t *testing.T) {
	suite.Run(t, new(SignerSuite))
}

func (s *SignerSuite) SetupTest() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	s.signer = FromKey(key)
	s.digest = crypto.Keccak256([]byte("payload"))
}

func (s *SignerSuite) TestSignAndRecover() {
	sig, err := s.signer.Sign(context.Background(), s.digest)
	s.Require().NoError(err)
	s.Len(sig, crypto.SignatureLength)
	s.Contains([]byte{27, 28}, sig[crypto.RecoveryIDOffset])

	recovered, err := Recover(s.digest, sig)
	s.Require().NoError(err)
	addr, ok := s.signer.Address()
	s.Require().True(ok)
	s.Equal(addr, recovered)

	s.Run("accepts raw recovery ids", func() {
		raw := append([]byte(nil), sig...)
		raw[crypto.RecoveryIDOffset] -= recoveryOffset
		recovered, err := Recover(s.digest, raw)
		s.Require().NoError(err)
		s.Equal(addr, recovered)
	})

	s.Run("recovery does not mutate the input", func() {
		before := sig[crypto.RecoveryIDOffset]
		_, _ = Recover(s.digest, sig)
		s.Equal(before, sig[crypto.RecoveryIDOffset])
	})

	s.Run("a different digest recovers a different address", func() {
		other, err := Recover(crypto.Keccak256([]byte("other")), sig)
		if err == nil {
			s.NotEqual(addr, other)
		}
	})

	s.Run("rejects truncated signatures", func() {
		_, err := Recover(s.digest, sig[:64])
		s.Error(err)
	})
}

func (s *SignerSuite) TestIdentity() {
	did, err := s.signer.Identity()
	s.Require().NoError(err)

	addr, err := identity.ParseDID(did)
	s.Require().NoError(err)
	expected, _ := s.signer.Address()
	s.Equal(expected, addr)
}

func (s *SignerSuite) TestUnconfigured() {
	unconfigured, err := New("")
	s.Require().NoError(err)

	_, err = unconfigured.Sign(context.Background(), s.digest)
	s.ErrorIs(err, ErrSignerUnavailable)
	s.True(dErrors.HasCode(err, dErrors.CodeSigningFailed))

	_, err = unconfigured.Identity()
	s.ErrorIs(err, ErrSignerUnavailable)

	_, ok := unconfigured.Address()
	s.False(ok)
}

func (s *SignerSuite) TestNewFromHex() {
	key, err := crypto.GenerateKey()
	s.Require().NoError(err)
	encoded := "0x" + hex.EncodeToString(crypto.FromECDSA(key))

	parsed, err := New(encoded)
	s.Require().NoError(err)
	addr, ok := parsed.Address()
	s.Require().True(ok)
	s.Equal(identity.FromPublicKey(&key.PublicKey), addr)

	_, err = New("not-hex")
	s.Error(err)
}

func (s *SignerSuite) TestRejectsWrongDigestLength() {
	_, err := s.signer.Sign(context.Background(), []byte("short"))
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidInput))
}

func (s *SignerSuite) TestWithTimeout() {
	ctrl := gomock.NewController(s.T())
	defer ctrl.Finish()

	s.Run("times out a slow signer", func() {
		slow := mocks.NewMockSigner(ctrl)
		slow.EXPECT().Sign(gomock.Any(), s.digest).DoAndReturn(func(ctx context.Context, _ []byte) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

		_, err := WithTimeout(slow, 10*time.Millisecond).Sign(context.Background(), s.digest)
		s.ErrorIs(err, ErrSigningTimeout)
		s.True(dErrors.HasCode(err, dErrors.CodeSigningFailed))
	})

	s.Run("passes through results and identity", func() {
		fast := mocks.NewMockSigner(ctrl)
		fast.EXPECT().Sign(gomock.Any(), s.digest).Return([]byte{1}, nil)
		fast.EXPECT().Identity().Return("did:ethr:x", nil)

		wrapped := WithTimeout(fast, time.Second)
		sig, err := wrapped.Sign(context.Background(), s.digest)
		s.Require().NoError(err)
		s.Equal([]byte{1}, sig)

		did, err := wrapped.Identity()
		s.Require().NoError(err)
		s.Equal("did:ethr:x", did)
	})

	s.Run("passes through errors", func() {
		failing := mocks.NewMockSigner(ctrl)
		boom := errors.New("hsm offline")
		failing.EXPECT().Sign(gomock.Any(), s.digest).Return(nil, boom)

		_, err := WithTimeout(failing, time.Second).Sign(context.Background(), s.digest)
		s.ErrorIs(err, boom)
	})

	s.Run("non-positive timeout returns the signer unchanged", func() {
		s.Equal(Signer(s.signer), WithTimeout(s.signer, 0))
	})
}

func (s *SignerSuite) TestTokenKey() {
	a, err := NewTokenKey("secret")
	s.Require().NoError(err)
	b, err := NewTokenKey("secret")
	s.Require().NoError(err)
	c, err := NewTokenKey("other")
	s.Require().NoError(err)

	ka, err := a.Bytes()
	s.Require().NoError(err)
	kb, _ := b.Bytes()
	kc, _ := c.Bytes()
	s.Len(ka, tokenKeySize)
	s.Equal(ka, kb)
	s.NotEqual(ka, kc)
	s.NotEqual([]byte("secret"), ka)

	empty, err := NewTokenKey("")
	s.Require().NoError(err)
	s.False(empty.Configured())
	_, err = empty.Bytes()
	s.ErrorIs(err, ErrTokenSignerUnavailable)
}
