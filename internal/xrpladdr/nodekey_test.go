package xrpladdr

import (
	"errors"
	"strings"
	"testing"

	"filippo.io/edwards25519"
)

func ed25519Payload() [payloadLen]byte {
	var payload [payloadLen]byte
	payload[0] = 0xED
	copy(payload[1:], edwards25519.NewGeneratorPoint().Bytes())
	return payload
}

func secp256k1Payload() [payloadLen]byte {
	var payload [payloadLen]byte
	payload[0] = 0x02
	for i := 1; i < payloadLen; i++ {
		payload[i] = byte(i)
	}
	return payload
}

func TestParseNodePublicKey_Ed25519RoundTrip(t *testing.T) {
	payload := ed25519Payload()
	encoded := EncodeNodePublicKey(payload)

	if !strings.HasPrefix(encoded, "n") {
		t.Errorf("expected encoded key to start with n, got %s", encoded)
	}

	key, err := ParseNodePublicKey(encoded)
	if err != nil {
		t.Fatalf("ParseNodePublicKey: %v", err)
	}
	if key.KeyType != KeyTypeEd25519 {
		t.Errorf("expected key type %s, got %s", KeyTypeEd25519, key.KeyType)
	}
	if key.Raw != payload {
		t.Error("decoded payload does not match encoded payload")
	}
}

func TestParseNodePublicKey_Secp256k1RoundTrip(t *testing.T) {
	payload := secp256k1Payload()

	key, err := ParseNodePublicKey(EncodeNodePublicKey(payload))
	if err != nil {
		t.Fatalf("ParseNodePublicKey: %v", err)
	}
	if key.KeyType != KeyTypeSecp256k1 {
		t.Errorf("expected key type %s, got %s", KeyTypeSecp256k1, key.KeyType)
	}
}

func TestParseNodePublicKey_InvalidAlphabet(t *testing.T) {
	// "0" is not part of the ripple alphabet.
	_, err := ParseNodePublicKey("n0000000000000000000000000000000000000000000000000")
	if err == nil {
		t.Fatal("expected error for invalid alphabet character")
	}
}

func TestParseNodePublicKey_WrongLength(t *testing.T) {
	_, err := ParseNodePublicKey("npv")
	if !errors.Is(err, ErrBadLength) {
		t.Fatalf("expected ErrBadLength, got %v", err)
	}
}

func TestParseNodePublicKey_ChecksumMismatch(t *testing.T) {
	encoded := EncodeNodePublicKey(ed25519Payload())

	// Swap two distinct payload characters; the checksum no longer matches.
	b := []byte(encoded)
	i, j := len(b)/2, len(b)/2+1
	for b[i] == b[j] && j < len(b)-1 {
		j++
	}
	if b[i] == b[j] {
		t.Skip("could not build a corrupted key")
	}
	b[i], b[j] = b[j], b[i]

	if _, err := ParseNodePublicKey(string(b)); err == nil {
		t.Fatal("expected error for corrupted key")
	}
}

func TestParseNodePublicKey_UnknownKeyByte(t *testing.T) {
	var payload [payloadLen]byte
	payload[0] = 0x7F

	_, err := ParseNodePublicKey(EncodeNodePublicKey(payload))
	if !errors.Is(err, ErrBadKeyByte) {
		t.Fatalf("expected ErrBadKeyByte, got %v", err)
	}
}

func TestParseNodePublicKey_InvalidEdPoint(t *testing.T) {
	var payload [payloadLen]byte
	payload[0] = 0xED
	for i := 1; i < payloadLen; i++ {
		payload[i] = 0xFF
	}

	if _, err := ParseNodePublicKey(EncodeNodePublicKey(payload)); err == nil {
		t.Fatal("expected error for non-canonical ed25519 point")
	}
}
