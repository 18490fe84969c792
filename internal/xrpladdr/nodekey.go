// Package xrpladdr decodes XRPL node public keys as they appear on the
// validation stream.
package xrpladdr

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
)

// XRPL uses its own base58 alphabet, not the Bitcoin one.
const rippleAlphabet = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

var alphabet = base58.NewAlphabet(rippleAlphabet)

// nodePublicPrefix is the type byte for node public keys; it yields the
// leading "n" in the encoded form.
const nodePublicPrefix = 0x1C

const (
	payloadLen  = 33
	checksumLen = 4
)

// Key types carried by the 33-byte payload's leading byte.
const (
	KeyTypeEd25519   = "ed25519"
	KeyTypeSecp256k1 = "secp256k1"
)

var (
	ErrBadLength   = errors.New("node public key: wrong decoded length")
	ErrBadPrefix   = errors.New("node public key: wrong type prefix")
	ErrBadChecksum = errors.New("node public key: checksum mismatch")
	ErrBadKeyByte  = errors.New("node public key: unknown key type byte")
)

// NodePublicKey is a decoded, checksum-verified node public key.
type NodePublicKey struct {
	// Raw is the 33-byte key payload: a type byte followed by the key
	// material.
	Raw [payloadLen]byte

	// KeyType is KeyTypeEd25519 or KeyTypeSecp256k1.
	KeyType string
}

// ParseNodePublicKey decodes a base58check node public key. Ed25519 keys
// (0xED type byte) additionally have their 32 key bytes validated as a
// canonical curve point.
func ParseNodePublicKey(s string) (*NodePublicKey, error) {
	decoded, err := base58.FastBase58DecodingAlphabet(s, alphabet)
	if err != nil {
		return nil, fmt.Errorf("node public key: %w", err)
	}
	if len(decoded) != 1+payloadLen+checksumLen {
		return nil, ErrBadLength
	}
	body := decoded[:1+payloadLen]
	if !checksumOK(body, decoded[1+payloadLen:]) {
		return nil, ErrBadChecksum
	}
	if body[0] != nodePublicPrefix {
		return nil, ErrBadPrefix
	}

	key := &NodePublicKey{}
	copy(key.Raw[:], body[1:])

	switch key.Raw[0] {
	case 0xED:
		point, err := new(edwards25519.Point).SetBytes(key.Raw[1:])
		if err != nil {
			return nil, fmt.Errorf("node public key: invalid ed25519 point: %w", err)
		}
		// SetBytes accepts non-canonical encodings; reject them here.
		if !bytes.Equal(point.Bytes(), key.Raw[1:]) {
			return nil, errors.New("node public key: non-canonical ed25519 point")
		}
		key.KeyType = KeyTypeEd25519
	case 0x02, 0x03:
		key.KeyType = KeyTypeSecp256k1
	default:
		return nil, ErrBadKeyByte
	}
	return key, nil
}

// EncodeNodePublicKey is the inverse of ParseNodePublicKey.
func EncodeNodePublicKey(payload [payloadLen]byte) string {
	buf := make([]byte, 0, 1+payloadLen+checksumLen)
	buf = append(buf, nodePublicPrefix)
	buf = append(buf, payload[:]...)
	sum := doubleSHA256(buf)
	buf = append(buf, sum[:checksumLen]...)
	return base58.FastBase58EncodingAlphabet(buf, alphabet)
}

func checksumOK(body, sum []byte) bool {
	want := doubleSHA256(body)
	for i := 0; i < checksumLen; i++ {
		if sum[i] != want[i] {
			return false
		}
	}
	return true
}

func doubleSHA256(b []byte) [sha256.Size]byte {
	first := sha256.Sum256(b)
	return sha256.Sum256(first[:])
}
