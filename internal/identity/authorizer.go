package identity

import (
	"context"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"cpamm/internal/model"
)

// ErrUnauthorized is returned when a request is not authorised by its caller.
var ErrUnauthorized = errors.New("unauthorized")

// SignatureAuthorizer accepts a request only when its signature recovers to
// the claimed caller.
//
// It is stateless. A signature binds the request contents but carries no
// nonce or expiry, so the same signed request verifies every time it is
// presented. Hosts that accept requests from untrusted transports must
// reject replays themselves, for example by recording request digests.
type SignatureAuthorizer struct{}

// Authorize recovers the signer of the request digest and compares it with
// the claimed caller.
func (SignatureAuthorizer) Authorize(_ context.Context, req model.Request) error {
	caller := req.Principal()
	if caller == (common.Address{}) {
		return fmt.Errorf("%w: empty caller", ErrUnauthorized)
	}
	sig := req.Sig()
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("%w: signature length %d", ErrUnauthorized, len(sig))
	}
	digest, err := Digest(req)
	if err != nil {
		return err
	}
	pub, err := crypto.SigToPub(digest.Bytes(), sig)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != caller {
		return fmt.Errorf("%w: signed by %s, caller %s", ErrUnauthorized, signer.Hex(), caller.Hex())
	}
	return nil
}

// Trusted accepts the claimed caller without checking a signature. Use it
// when the host authenticates callers itself.
type Trusted struct{}

// Authorize rejects only an empty caller.
func (Trusted) Authorize(_ context.Context, req model.Request) error {
	if req.Principal() == (common.Address{}) {
		return fmt.Errorf("%w: empty caller", ErrUnauthorized)
	}
	return nil
}
