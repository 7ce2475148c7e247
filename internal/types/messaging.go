package types

// Message attributes carried by units travelling through SQS.
const (
	// AttrContentEncoding names the attribute describing how the body was
	// encoded. Absent means plain JSON.
	AttrContentEncoding = "content-encoding"

	// EncodingZstdBase64 is zstd-compressed JSON, base64 (std) encoded.
	EncodingZstdBase64 = "zstd+base64"

	// AttrUnitID duplicates the unit id outside the body for operators
	// inspecting the queue.
	AttrUnitID = "unit-id"

	// AttrRetryCount carries the unit retry counter at publish time.
	AttrRetryCount = "retry-count"
)
