package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"receiptnotifier/internal/notifications/core"
	"receiptnotifier/internal/types"
)

const unitJSON = `{"id":"r-1","kind":"RECEIPT","status":"IO_ERROR_TO_NOTIFY","notification_num_retry":2,
"debtors":[{"debtor_fiscal_code":"tok-1"}],"payment":{"payee_name":"Comune di Roma","total_amount":"12.50"}}`

func TestReadUnits(t *testing.T) {
	units, err := readUnits(strings.NewReader(unitJSON))
	require.NoError(t, err)
	require.Len(t, units, 1)
	assert.Equal(t, "r-1", units[0].ID)

	units, err = readUnits(strings.NewReader("[" + unitJSON + "," + strings.Replace(unitJSON, "r-1", "r-2", 1) + "]"))
	require.NoError(t, err)
	assert.Len(t, units, 2)

	_, err = readUnits(strings.NewReader(`{"id":"x","kind":"RECEIPT"}`))
	assert.Error(t, err, "missing status and debtors")

	_, err = readUnits(strings.NewReader("  "))
	assert.Error(t, err)

	_, err = readUnits(strings.NewReader("[null]"))
	assert.Error(t, err)
}

func TestBuildEvent(t *testing.T) {
	units, err := readUnits(strings.NewReader(unitJSON))
	require.NoError(t, err)
	now := time.UnixMilli(1_700_000_000_000)

	plain, err := buildEvent(units, 1<<20, false, now)
	require.NoError(t, err)
	require.Len(t, plain.Records, 1)
	rec := plain.Records[0]
	assert.Equal(t, "1700000000000", rec.Attributes["SentTimestamp"])
	assert.NotContains(t, rec.MessageAttributes, types.AttrContentEncoding)
	assert.NotContains(t, rec.MessageAttributes, types.AttrRetryCount)
	assert.Equal(t, "r-1", *rec.MessageAttributes[types.AttrUnitID].StringValue)

	compressed, err := buildEvent(units, 0, true, now)
	require.NoError(t, err)
	rec = compressed.Records[0]
	enc := *rec.MessageAttributes[types.AttrContentEncoding].StringValue
	assert.Equal(t, types.EncodingZstdBase64, enc)
	assert.Equal(t, "2", *rec.MessageAttributes[types.AttrRetryCount].StringValue)

	decoded, err := core.DecodeUnit(rec.Body, enc)
	require.NoError(t, err)
	assert.Equal(t, units[0].Payment.PayeeName, decoded.Payment.PayeeName)
}

func TestRunPrintsEvent(t *testing.T) {
	var out bytes.Buffer
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := run(context.Background(), options{threshold: 1 << 20}, strings.NewReader(unitJSON), &out, logger)
	require.NoError(t, err)

	var event events.SQSEvent
	require.NoError(t, json.Unmarshal(out.Bytes(), &event))
	assert.Len(t, event.Records, 1)
}

func TestRunEnqueueRequiresQueue(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	err := run(context.Background(), options{enqueue: true}, strings.NewReader(unitJSON), io.Discard, logger)
	assert.ErrorContains(t, err, "queue-url")
}

type recordingPublisher struct {
	ids    []string
	failOn string
}

func (p *recordingPublisher) Publish(_ context.Context, u *types.NotifiableUnit, _ time.Duration) error {
	if u.ID == p.failOn {
		return errors.New("throttled")
	}
	p.ids = append(p.ids, u.ID)
	return nil
}

func TestEnqueue(t *testing.T) {
	units := []*types.NotifiableUnit{{ID: "a"}, {ID: "b"}, {ID: "c"}}

	p := &recordingPublisher{}
	require.NoError(t, enqueue(context.Background(), p, units, time.Minute))
	assert.Equal(t, []string{"a", "b", "c"}, p.ids)

	p = &recordingPublisher{failOn: "b"}
	err := enqueue(context.Background(), p, units, 0)
	assert.ErrorContains(t, err, "unit b")
	assert.Equal(t, []string{"a"}, p.ids)
}
