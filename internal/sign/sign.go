// Package sign builds and signs canonical stake requests.
//
// The payload layout is a versioned wire contract shared with the
// settlement worker: field set and order are fixed, and any change is a
// breaking change requiring a new version tag. This package implements the
// v3 (sats-based) contract.
package sign

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
)

// domainTag separates stake signatures from any other ed25519 use of the
// same key, and pins the payload version.
const domainTag = "reelfeed-stake-v3"

// Direction is the side of the wager.
type Direction uint8

const (
	DirectionHot Direction = 0
	DirectionNot Direction = 1
)

func (d Direction) String() string {
	if d == DirectionHot {
		return "hot"
	}
	return "not"
}

// StakeRequest is the canonical v3 stake payload. Field order matters for
// signature stability - see CanonicalBytes.
type StakeRequest struct {
	PublisherPrincipal string    `json:"publisher_principal"`
	PostID             uint64    `json:"post_id"`
	Amount             uint64    `json:"vote_amount"`
	Direction          Direction `json:"direction"`
}

// Signature is a hex-encoded ed25519 signature over the canonical bytes.
type Signature string

// ErrBadKey reports malformed key material. Signing with a bad key is
// fatal to the submission attempt - retrying cannot succeed.
var ErrBadKey = errors.New("sign: malformed key material")

// CanonicalBytes serializes the request deterministically: the domain tag,
// then publisher principal (length-prefixed), post id, amount, and
// direction, all big-endian. Same request in, same bytes out.
func (r StakeRequest) CanonicalBytes() []byte {
	principal := []byte(r.PublisherPrincipal)
	buf := make([]byte, 0, len(domainTag)+4+len(principal)+8+8+1)
	buf = append(buf, domainTag...)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(principal)))
	buf = append(buf, principal...)
	buf = binary.BigEndian.AppendUint64(buf, r.PostID)
	buf = binary.BigEndian.AppendUint64(buf, r.Amount)
	buf = append(buf, byte(r.Direction))
	return buf
}

// Sign produces the stake signature with the caller's identity key.
// Pure and deterministic: the same key and request always yield the same
// signature. Never retried internally.
func Sign(priv ed25519.PrivateKey, req StakeRequest) (Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("%w: private key must be %d bytes, got %d",
			ErrBadKey, ed25519.PrivateKeySize, len(priv))
	}
	sig := ed25519.Sign(priv, req.CanonicalBytes())
	return Signature(hex.EncodeToString(sig)), nil
}

// Verify checks a stake signature against the signer's public key.
func Verify(pub ed25519.PublicKey, req StakeRequest, sig Signature) error {
	if len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("%w: public key must be %d bytes, got %d",
			ErrBadKey, ed25519.PublicKeySize, len(pub))
	}
	raw, err := hex.DecodeString(string(sig))
	if err != nil {
		return fmt.Errorf("sign: invalid signature hex: %w", err)
	}
	if !ed25519.Verify(pub, req.CanonicalBytes(), raw) {
		return errors.New("sign: signature verification failed")
	}
	return nil
}
