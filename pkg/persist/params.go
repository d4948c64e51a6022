package persist

import (
	"encoding/json"
	"fmt"

	"github.com/libracore/libracore/pkg/index"
)

// encodeIndexParams serializes index.Params to JSON for storage alongside
// a library record, so recovery can rebuild the exact index configuration.
func encodeIndexParams(params index.Params) (string, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("encode index params: %w", err)
	}
	return string(data), nil
}

func decodeIndexParams(jsonStr string) (index.Params, error) {
	var params index.Params
	if jsonStr == "" {
		return params, nil
	}
	if err := json.Unmarshal([]byte(jsonStr), &params); err != nil {
		return params, fmt.Errorf("decode index params: %w", err)
	}
	return params, nil
}
