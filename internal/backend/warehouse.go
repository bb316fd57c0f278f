package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/sqlcore"
	"go-lakehouse-gateway/internal/workspace"
)

const (
	pollInterval = 500 * time.Millisecond
	// maxWaitHint is the longest server-side wait the statement API accepts.
	maxWaitHint = 50 * time.Second
)

// statementAPI is the slice of the workspace client the backend needs.
type statementAPI interface {
	ExecuteStatement(ctx context.Context, req workspace.StatementRequest) (*workspace.StatementResponse, error)
	GetStatement(ctx context.Context, statementID string) (*workspace.StatementResponse, error)
	GetStatementResultChunk(ctx context.Context, statementID string, chunkIndex int) (*workspace.ResultData, error)
	CancelExecution(ctx context.Context, statementID string) error
}

// WarehouseBackend runs SQL through the statement execution API: submit,
// poll to a terminal state, then page through result chunks.
type WarehouseBackend struct {
	ops
	client statementAPI
	cfg    config.WarehouseConfig
	logger *zap.Logger
}

func NewWarehouseBackend(client *workspace.Client, cfg config.WarehouseConfig, logger *zap.Logger) *WarehouseBackend {
	return newWarehouseBackend(client, cfg, logger)
}

func newWarehouseBackend(client statementAPI, cfg config.WarehouseConfig, logger *zap.Logger) *WarehouseBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 600 * time.Second
	}
	if cfg.ByteLimit <= 0 {
		cfg.ByteLimit = 10_000_000
	}
	if cfg.Disposition == "" {
		cfg.Disposition = workspace.DispositionInline
	}
	b := &WarehouseBackend{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
	b.ops = ops{exec: b, dialect: sqlcore.DialectWarehouse, inline: true}
	return b
}

// run submits a statement and polls until it reaches a terminal state.
// Past the configured timeout a best-effort cancel is issued and a
// TimeoutError raised; a remote-reported failure becomes a RemoteError.
func (b *WarehouseBackend) run(ctx context.Context, sql string) (*workspace.StatementResponse, error) {
	waitHint := min(b.cfg.Timeout, maxWaitHint)
	req := workspace.StatementRequest{
		Statement:     sql,
		WarehouseID:   b.cfg.WarehouseID,
		Disposition:   b.cfg.Disposition,
		Format:        "JSON_ARRAY",
		ByteLimit:     b.cfg.ByteLimit,
		WaitTimeout:   fmt.Sprintf("%ds", int(waitHint.Seconds())),
		OnWaitTimeout: "CONTINUE",
	}

	start := time.Now()
	resp, err := b.client.ExecuteStatement(ctx, req)
	if err != nil {
		return nil, err
	}

	for resp.Status.State == workspace.StatePending || resp.Status.State == workspace.StateRunning {
		if elapsed := time.Since(start); elapsed > b.cfg.Timeout {
			b.logger.Warn("Statement exceeded timeout, cancelling",
				zap.String("statement_id", resp.StatementID),
				zap.Duration("elapsed", elapsed))
			if cerr := b.client.CancelExecution(ctx, resp.StatementID); cerr != nil {
				b.logger.Warn("Cancel failed", zap.Error(cerr))
			}
			return nil, &TimeoutError{Elapsed: elapsed}
		}

		select {
		case <-ctx.Done():
			_ = b.client.CancelExecution(context.WithoutCancel(ctx), resp.StatementID)
			return nil, ctx.Err()
		case <-time.After(pollInterval):
		}

		resp, err = b.client.GetStatement(ctx, resp.StatementID)
		if err != nil {
			return nil, err
		}
	}

	switch resp.Status.State {
	case workspace.StateSucceeded:
		return resp, nil
	default:
		message := "statement execution failed"
		code := ""
		if resp.Status.Error != nil && resp.Status.Error.Message != "" {
			message = resp.Status.Error.Message
			code = resp.Status.Error.ErrorCode
		}
		return nil, &RemoteError{Message: message, Code: code}
	}
}

// Execute returns the manifest's total row count; DML row counts come back
// through the manifest on this API.
func (b *WarehouseBackend) Execute(ctx context.Context, sql string, args ...any) (int64, error) {
	if len(args) > 0 {
		return 0, errors.New("warehouse backend does not support bound parameters")
	}
	resp, err := b.run(ctx, sql)
	if err != nil {
		return 0, err
	}
	if resp.Manifest != nil {
		return resp.Manifest.TotalRowCount, nil
	}
	return 0, nil
}

// Fetch runs the statement and returns a chunk-paginated iterator. Cells
// are converted per column type; a failed conversion keeps the raw string.
func (b *WarehouseBackend) Fetch(ctx context.Context, sql string, args ...any) (RowIterator, error) {
	if len(args) > 0 {
		return nil, errors.New("warehouse backend does not support bound parameters")
	}
	resp, err := b.run(ctx, sql)
	if err != nil {
		return nil, err
	}
	if resp.Manifest == nil {
		return newSliceIterator(nil), nil
	}

	columns := resp.Manifest.Schema.Columns
	names := make([]string, len(columns))
	convs := make([]sqlcore.Converter, len(columns))
	for i, col := range columns {
		names[i] = col.Name
		convs[i] = sqlcore.ConverterFor(col.TypeName)
	}
	factory, err := sqlcore.NewRowFactory(names)
	if err != nil {
		return nil, err
	}

	it := &chunkIterator{
		ctx:         ctx,
		client:      b.client,
		statementID: resp.StatementID,
		factory:     factory,
		converters:  convs,
	}
	if resp.Result != nil {
		it.chunk = resp.Result.DataArray
		it.next = resp.Result.NextChunkIndex
	}
	return it, nil
}

func (b *WarehouseBackend) Close(context.Context) error { return nil }

// chunkIterator walks the inline result batch, then follows next_chunk_index
// until the API stops reporting one.
type chunkIterator struct {
	ctx         context.Context
	client      statementAPI
	statementID string
	factory     *sqlcore.RowFactory
	converters  []sqlcore.Converter

	chunk   [][]*string
	pos     int
	next    *int
	current sqlcore.Row
	err     error
	closed  bool
}

func (it *chunkIterator) Next() bool {
	if it.err != nil || it.closed {
		return false
	}
	for it.pos >= len(it.chunk) {
		if it.next == nil {
			return false
		}
		data, err := it.client.GetStatementResultChunk(it.ctx, it.statementID, *it.next)
		if err != nil {
			it.err = err
			return false
		}
		it.chunk = data.DataArray
		it.pos = 0
		it.next = data.NextChunkIndex
	}

	row, err := it.factory.Row(it.convert(it.chunk[it.pos]))
	if err != nil {
		it.err = err
		return false
	}
	it.current = row
	it.pos++
	return true
}

// convert applies the per-column converters. Conversion is best-effort: a
// cell that fails to parse comes through as its raw string.
func (it *chunkIterator) convert(cells []*string) []any {
	values := make([]any, len(cells))
	for i, cell := range cells {
		if cell == nil {
			continue
		}
		var conv sqlcore.Converter
		if i < len(it.converters) {
			conv = it.converters[i]
		}
		if conv == nil {
			values[i] = *cell
			continue
		}
		parsed, err := conv(*cell)
		if err != nil {
			values[i] = *cell
			continue
		}
		values[i] = parsed
	}
	return values
}

func (it *chunkIterator) Row() sqlcore.Row { return it.current }
func (it *chunkIterator) Err() error       { return it.err }
func (it *chunkIterator) Close()           { it.closed = true }
