package signer

import (
	"context"
	"time"

	dErrors "consent-ledger/pkg/domain-errors"
)

type timeoutSigner struct {
	next    Signer
	timeout time.Duration
}

// WithTimeout bounds every Sign call on next. It is meant for key material
// that lives behind a network hop; a local key never needs it, but wrapping
// one is harmless. A non-positive timeout returns next unchanged.
func WithTimeout(next Signer, timeout time.Duration) Signer {
	if timeout <= 0 {
		return next
	}
	return &timeoutSigner{next: next, timeout: timeout}
}

type signResult struct {
	sig []byte
	err error
}

func (t *timeoutSigner) Sign(ctx context.Context, digest []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	done := make(chan signResult, 1)
	go func() {
		sig, err := t.next.Sign(ctx, digest)
		done <- signResult{sig: sig, err: err}
	}()

	select {
	case r := <-done:
		return r.sig, r.err
	case <-ctx.Done():
		return nil, dErrors.Wrap(ErrSigningTimeout, dErrors.CodeSigningFailed, "credential signing timed out")
	}
}

func (t *timeoutSigner) Identity() (string, error) {
	return t.next.Identity()
}
