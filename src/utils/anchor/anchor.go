// Package anchor implements the anchor string codec shared with the
// on-chain consumers of the anchor contract.
//
// An anchor string has the shape "<numberOfOperations>.<coreIndexFileUri>"
// where the URI is the base58btc encoding of a multihash-prefixed SHA-256
// digest read from the contract log.
package anchor

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

const (
	// Multihash prefix for a 32 byte SHA-256 digest
	Sha256Code   = 0x12
	Sha256Length = 0x20
)

var (
	ErrMalformedAnchorString = errors.New("malformed anchor string")
	ErrUnsupportedMultihash  = errors.New("unsupported multihash")
)

// Builds the CAS URI out of the raw 32 byte digest stored in the log's
// anchorFileHash field.
func UriFromDigest(digest [32]byte) string {
	buf := make([]byte, 2, 2+len(digest))
	buf[0] = Sha256Code
	buf[1] = Sha256Length
	buf = append(buf, digest[:]...)
	return base58.Encode(buf)
}

// Extracts the raw 32 byte digest back out of a CAS URI.
func DigestFromUri(uri string) (digest [32]byte, err error) {
	decoded, err := base58.Decode(uri)
	if err != nil {
		return
	}
	if len(decoded) != 2+Sha256Length || decoded[0] != Sha256Code || decoded[1] != Sha256Length {
		err = ErrUnsupportedMultihash
		return
	}
	copy(digest[:], decoded[2:])
	return
}

// Serialize produces the canonical anchor string. Both directions are
// lossless, serialize(deserialize(s)) == s byte-exact.
func Serialize(numberOfOperations uint64, coreIndexFileUri string) string {
	return fmt.Sprintf("%d.%s", numberOfOperations, coreIndexFileUri)
}

func Deserialize(anchorString string) (numberOfOperations uint64, coreIndexFileUri string, err error) {
	parts := strings.SplitN(anchorString, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		err = ErrMalformedAnchorString
		return
	}

	numberOfOperations, err = strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		err = ErrMalformedAnchorString
		return
	}

	// Reject non-canonical zero padding, the round-trip has to be byte-exact
	if strconv.FormatUint(numberOfOperations, 10) != parts[0] {
		err = ErrMalformedAnchorString
		return
	}

	// The URI part has to be a valid multihash reference
	_, err = DigestFromUri(parts[1])
	if err != nil {
		return
	}

	coreIndexFileUri = parts[1]
	return
}
