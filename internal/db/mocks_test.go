package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/mock"
)

type mockDBTX struct {
	mock.Mock
}

func (m *mockDBTX) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgconn.CommandTag), args.Error(1)
}

func (m *mockDBTX) Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error) {
	args := m.Called(ctx, sql, arguments)
	if r := args.Get(0); r != nil {
		return r.(pgx.Rows), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDBTX) QueryRow(ctx context.Context, sql string, arguments ...any) pgx.Row {
	args := m.Called(ctx, sql, arguments)
	return args.Get(0).(pgx.Row)
}

func (m *mockDBTX) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	args := m.Called(ctx, b)
	return args.Get(0).(pgx.BatchResults)
}

type mockRow struct {
	scanErr error
	scanFn  func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error {
	if r.scanFn != nil {
		return r.scanFn(dest...)
	}
	return r.scanErr
}

// mockBatchResults fails the Exec at index failAt (-1 never fails).
type mockBatchResults struct {
	execs  int
	failAt int
	err    error
	closed bool
}

func (b *mockBatchResults) Exec() (pgconn.CommandTag, error) {
	i := b.execs
	b.execs++
	if i == b.failAt {
		return pgconn.CommandTag{}, b.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (b *mockBatchResults) Query() (pgx.Rows, error) { return nil, nil }
func (b *mockBatchResults) QueryRow() pgx.Row        { return &mockRow{} }
func (b *mockBatchResults) Close() error {
	b.closed = true
	return nil
}

// payloadRows yields one []byte column per row.
type payloadRows struct {
	data    [][]byte
	idx     int
	scanErr error
	errVal  error
}

func (r *payloadRows) Next() bool {
	r.idx++
	return r.idx <= len(r.data)
}

func (r *payloadRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	*dest[0].(*[]byte) = r.data[r.idx-1]
	return nil
}

func (r *payloadRows) Close()                                       {}
func (r *payloadRows) Err() error                                   { return r.errVal }
func (r *payloadRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *payloadRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *payloadRows) RawValues() [][]byte                          { return nil }
func (r *payloadRows) Values() ([]any, error)                       { return nil, nil }
func (r *payloadRows) Conn() *pgx.Conn                              { return nil }
