package codec

import (
	"reflect"
	"testing"
)

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	vector := []float32{0.1, -0.2, 3.5, 0}
	encoded, err := EncodeVector(vector)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeVector(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, vector) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, vector)
	}
}

func TestEncodeVectorNil(t *testing.T) {
	if _, err := EncodeVector(nil); err != ErrInvalidVector {
		t.Fatalf("expected ErrInvalidVector, got %v", err)
	}
}

func TestDecodeVectorTruncated(t *testing.T) {
	if _, err := DecodeVector([]byte{1, 2}); err != ErrInvalidVector {
		t.Fatalf("expected ErrInvalidVector, got %v", err)
	}
}

func TestEncodeDecodeMetadataRoundTrip(t *testing.T) {
	metadata := map[string]string{"source": "wiki", "lang": "en"}
	encoded, err := EncodeMetadata(metadata)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := DecodeMetadata(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(decoded, metadata) {
		t.Fatalf("round trip mismatch: got %v, want %v", decoded, metadata)
	}
}

func TestEncodeMetadataEmpty(t *testing.T) {
	encoded, err := EncodeMetadata(nil)
	if err != nil {
		t.Fatalf("encode nil: %v", err)
	}
	if encoded != "" {
		t.Fatalf("expected empty string, got %q", encoded)
	}

	decoded, err := DecodeMetadata("")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if decoded != nil {
		t.Fatalf("expected nil map, got %v", decoded)
	}
}
