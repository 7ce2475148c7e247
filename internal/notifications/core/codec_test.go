package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptnotifier/internal/types"
)

func sampleUnit() *types.NotifiableUnit {
	return &types.NotifiableUnit{
		ID:              "cart-1",
		Kind:            types.UnitKindCart,
		Status:          types.StatusIOErrorToNotify,
		PayerFiscalCode: "tok-payer",
		Debtors: []types.DebtorItem{
			{SubUnitID: "evt-1", FiscalCode: "tok-a", Subject: strings.Repeat("TARI 2025 ", 50)},
			{SubUnitID: "evt-2", FiscalCode: "tok-b"},
		},
		RetryCount: 2,
		ReasonErr:  &types.ReasonError{Code: 500, Message: "provider error"},
	}
}

func TestEncodeUnit_CompressesAboveThreshold(t *testing.T) {
	body, enc, err := EncodeUnit(sampleUnit(), 64)
	require.NoError(t, err)
	assert.Equal(t, types.EncodingZstdBase64, enc)
	assert.NotContains(t, body, "cart-1")

	got, err := DecodeUnit(body, enc)
	require.NoError(t, err)
	assert.Equal(t, sampleUnit(), got)
}

func TestEncodeUnit_PlainBelowThreshold(t *testing.T) {
	body, enc, err := EncodeUnit(sampleUnit(), 1<<20)
	require.NoError(t, err)
	assert.Empty(t, enc)
	assert.Contains(t, body, `"id":"cart-1"`)

	got, err := DecodeUnit(body, enc)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}

func TestDecodeUnit_Errors(t *testing.T) {
	_, err := DecodeUnit("{}", "gzip")
	assert.ErrorContains(t, err, "unsupported content encoding")

	_, err = DecodeUnit("***", types.EncodingZstdBase64)
	assert.ErrorContains(t, err, "base64")

	_, err = DecodeUnit("aGVsbG8=", types.EncodingZstdBase64)
	assert.ErrorContains(t, err, "decompress")

	_, err = DecodeUnit("{not json", "")
	assert.ErrorContains(t, err, "unmarshal")
}
