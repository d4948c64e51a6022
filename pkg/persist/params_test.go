package persist

import (
	"testing"

	"github.com/libracore/libracore/pkg/index"
)

func TestEncodeDecodeIndexParamsRoundTrip(t *testing.T) {
	params := index.Params{NClusters: 8, NProbes: 2, KMeansIters: 20, Seed: 42}

	encoded, err := encodeIndexParams(params)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := decodeIndexParams(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded != params {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, params)
	}
}

func TestDecodeIndexParamsEmptyString(t *testing.T) {
	decoded, err := decodeIndexParams("")
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if decoded != (index.Params{}) {
		t.Fatalf("expected zero value, got %+v", decoded)
	}
}
