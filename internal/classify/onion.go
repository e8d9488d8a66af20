package classify

import (
	"encoding/base32"
	"regexp"
	"strings"

	"golang.org/x/crypto/sha3"
)

// Onion address constants.
const (
	// onionV3Length is the length of a v3 onion label without the ".onion" suffix.
	onionV3Length = 56

	// onionV3Version is the version byte for v3 onion addresses.
	onionV3Version = 0x03

	onionSuffix = ".onion"
)

// onionV3Label matches the 56 base32 characters of a v3 label.
// Base32 uses lowercase a-z and digits 2-7 (no 0, 1, 8, 9 to avoid confusion).
var onionV3Label = regexp.MustCompile(`^[a-z2-7]{56}$`)

// onionV2Label matches deprecated 16 character labels, only to name them in errors.
var onionV2Label = regexp.MustCompile(`^[a-z2-7]{16}$`)

// checksumPrefix is the prefix used in v3 onion address checksum calculation.
// This is specified in the Tor rendezvous specification.
var checksumPrefix = []byte(".onion checksum")

// validOnionV3Label checks the format, version byte and SHA3 checksum of a
// v3 label (without the ".onion" suffix).
//
// Design decision: We perform full checksum validation rather than just
// pattern matching because:
// 1. It catches typos and corrupted addresses scraped from page text
// 2. Random 56 character base32 runs inside scripts are not mistaken for onions
// 3. It matches what Tor itself does when connecting
func validOnionV3Label(label string) bool {
	if !onionV3Label.MatchString(label) {
		return false
	}

	decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(label))
	if err != nil {
		return false
	}

	// 32 bytes ed25519 public key, 2 bytes checksum, 1 byte version.
	if len(decoded) != 35 {
		return false
	}

	pubkey := decoded[:32]
	checksum := decoded[32:34]
	version := decoded[34]

	if version != onionV3Version {
		return false
	}

	expected := onionChecksum(pubkey, version)
	return checksum[0] == expected[0] && checksum[1] == expected[1]
}

// onionChecksum is the first 2 bytes of SHA3-256(".onion checksum" || pubkey || version).
func onionChecksum(pubkey []byte, version byte) []byte {
	data := make([]byte, 0, len(checksumPrefix)+len(pubkey)+1)
	data = append(data, checksumPrefix...)
	data = append(data, pubkey...)
	data = append(data, version)

	hash := sha3.Sum256(data)
	return hash[:2]
}

// OnionFromPublicKey computes the v3 onion host for an ed25519 public key.
// It returns ErrUnknownFormat when the key is not 32 bytes.
func OnionFromPublicKey(pubkey []byte) (string, error) {
	if len(pubkey) != 32 {
		return "", ErrUnknownFormat
	}

	data := make([]byte, 35)
	copy(data[:32], pubkey)
	copy(data[32:34], onionChecksum(pubkey, onionV3Version))
	data[34] = onionV3Version

	return strings.ToLower(base32.StdEncoding.EncodeToString(data)) + onionSuffix, nil
}
