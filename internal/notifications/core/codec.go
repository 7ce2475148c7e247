package core

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"receiptnotifier/internal/types"
)

// Encoder and decoder are safe for concurrent use through EncodeAll and
// DecodeAll, so one of each serves the whole process.
var (
	zstdEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	zstdDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(8<<20))
)

// EncodeUnit serializes a unit for the retry queue. Payloads larger than
// threshold bytes are zstd-compressed and base64 encoded; the returned
// encoding is "" for plain JSON or types.EncodingZstdBase64. A threshold of
// 0 always compresses.
func EncodeUnit(unit *types.NotifiableUnit, threshold int) (body string, encoding string, err error) {
	raw, err := json.Marshal(unit)
	if err != nil {
		return "", "", fmt.Errorf("marshal unit %s: %w", unit.ID, err)
	}
	if threshold > 0 && len(raw) <= threshold {
		return string(raw), "", nil
	}

	compressed := zstdEncoder.EncodeAll(raw, make([]byte, 0, len(raw)/2))
	return base64.StdEncoding.EncodeToString(compressed), types.EncodingZstdBase64, nil
}

// DecodeUnit reverses EncodeUnit.
func DecodeUnit(body string, encoding string) (*types.NotifiableUnit, error) {
	var raw []byte
	switch encoding {
	case "":
		raw = []byte(body)
	case types.EncodingZstdBase64:
		compressed, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		raw, err = zstdDecoder.DecodeAll(compressed, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress body: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", encoding)
	}

	var unit types.NotifiableUnit
	if err := json.Unmarshal(raw, &unit); err != nil {
		return nil, fmt.Errorf("unmarshal unit: %w", err)
	}
	return &unit, nil
}
