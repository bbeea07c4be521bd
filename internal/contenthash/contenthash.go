// Package contenthash converts between CIDv0 content identifiers and the
// 32-byte pointers stored on events. A CIDv0 is the base58 encoding of a
// sha2-256 multihash: the two bytes 0x12 0x20 followed by the digest. Only the
// digest is stored.
package contenthash

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/btcsuite/btcutil/base58"
	"github.com/ethereum/go-ethereum/common"
)

// Multihash prefix for sha2-256 with a 32-byte digest.
const (
	codeSHA256 = 0x12
	digestLen  = 0x20
)

var ErrInvalidCID = errors.New("contenthash: invalid CIDv0")

// FromCID strips the multihash prefix from a CIDv0 and returns the digest.
func FromCID(cid string) (common.Hash, error) {
	raw := base58.Decode(cid)
	if len(raw) != 2+common.HashLength {
		return common.Hash{}, fmt.Errorf("%w: %q decodes to %d bytes", ErrInvalidCID, cid, len(raw))
	}
	if raw[0] != codeSHA256 || raw[1] != digestLen {
		return common.Hash{}, fmt.Errorf("%w: %q has prefix %#x%02x", ErrInvalidCID, cid, raw[0], raw[1])
	}
	return common.BytesToHash(raw[2:]), nil
}

// ToCID prepends the multihash prefix to h and base58-encodes it.
func ToCID(h common.Hash) string {
	raw := make([]byte, 0, 2+common.HashLength)
	raw = append(raw, codeSHA256, digestLen)
	raw = append(raw, h[:]...)
	return base58.Encode(raw)
}

// Sum returns the pointer and CID addressing doc.
func Sum(doc []byte) (common.Hash, string) {
	h := common.Hash(sha256.Sum256(doc))
	return h, ToCID(h)
}
