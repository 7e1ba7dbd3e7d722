package identity

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"cpamm/internal/model"
)

// Domain separates request digests from other signed payloads.
const Domain = "cpamm/v1"

// Digest returns keccak256(Domain || rlp([operation, payload...])).
func Digest(req model.Request) (common.Hash, error) {
	payload := req.SigningPayload()
	fields := make([]interface{}, 0, len(payload)+1)
	fields = append(fields, string(req.Operation()))
	fields = append(fields, payload...)
	enc, err := rlp.EncodeToBytes(fields)
	if err != nil {
		return common.Hash{}, fmt.Errorf("encode %s request: %w", req.Operation(), err)
	}
	return crypto.Keccak256Hash([]byte(Domain), enc), nil
}

// Sign returns a 65-byte recoverable signature over the request digest.
func Sign(req model.Request, key *ecdsa.PrivateKey) ([]byte, error) {
	digest, err := Digest(req)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(digest.Bytes(), key)
	if err != nil {
		return nil, fmt.Errorf("sign %s request: %w", req.Operation(), err)
	}
	return sig, nil
}
