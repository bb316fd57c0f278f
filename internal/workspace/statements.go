package workspace

import (
	"context"
	"fmt"
	"net/http"
)

// Statement states reported by the statement execution API.
const (
	StatePending   = "PENDING"
	StateRunning   = "RUNNING"
	StateSucceeded = "SUCCEEDED"
	StateFailed    = "FAILED"
	StateCanceled  = "CANCELED"
	StateClosed    = "CLOSED"
)

// Result dispositions.
const (
	DispositionInline        = "INLINE"
	DispositionExternalLinks = "EXTERNAL_LINKS"
)

// StatementRequest submits a SQL statement to a warehouse.
type StatementRequest struct {
	Statement     string `json:"statement"`
	WarehouseID   string `json:"warehouse_id"`
	Catalog       string `json:"catalog,omitempty"`
	Schema        string `json:"schema,omitempty"`
	Disposition   string `json:"disposition,omitempty"`
	Format        string `json:"format,omitempty"`
	ByteLimit     int64  `json:"byte_limit,omitempty"`
	WaitTimeout   string `json:"wait_timeout,omitempty"`
	OnWaitTimeout string `json:"on_wait_timeout,omitempty"`
}

// StatementResponse is the statement execution state plus, on success, the
// result manifest and the first result chunk.
type StatementResponse struct {
	StatementID string          `json:"statement_id"`
	Status      StatementStatus `json:"status"`
	Manifest    *ResultManifest `json:"manifest,omitempty"`
	Result      *ResultData     `json:"result,omitempty"`
}

type StatementStatus struct {
	State string          `json:"state"`
	Error *StatementError `json:"error,omitempty"`
}

type StatementError struct {
	Message   string `json:"message"`
	ErrorCode string `json:"error_code"`
}

type ResultManifest struct {
	Schema          ResultSchema `json:"schema"`
	TotalRowCount   int64        `json:"total_row_count"`
	TotalChunkCount int          `json:"total_chunk_count"`
}

type ResultSchema struct {
	ColumnCount int          `json:"column_count"`
	Columns     []ColumnInfo `json:"columns"`
}

type ColumnInfo struct {
	Name     string `json:"name"`
	TypeText string `json:"type_text"`
	TypeName string `json:"type_name"`
	Position int    `json:"position"`
}

// ResultData is one chunk of rows in JSON-array form. Cells are nullable
// strings; NextChunkIndex is absent on the final chunk.
type ResultData struct {
	ChunkIndex     int         `json:"chunk_index"`
	RowCount       int64       `json:"row_count"`
	RowOffset      int64       `json:"row_offset"`
	DataArray      [][]*string `json:"data_array"`
	NextChunkIndex *int        `json:"next_chunk_index,omitempty"`
}

// ExecuteStatement submits a statement for execution.
func (c *Client) ExecuteStatement(ctx context.Context, req StatementRequest) (*StatementResponse, error) {
	var resp StatementResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/sql/statements", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatement retrieves the current execution state of a statement.
func (c *Client) GetStatement(ctx context.Context, statementID string) (*StatementResponse, error) {
	var resp StatementResponse
	path := fmt.Sprintf("/api/2.0/sql/statements/%s", statementID)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetStatementResultChunk fetches one result chunk by index.
func (c *Client) GetStatementResultChunk(ctx context.Context, statementID string, chunkIndex int) (*ResultData, error) {
	var resp ResultData
	path := fmt.Sprintf("/api/2.0/sql/statements/%s/result/chunks/%d", statementID, chunkIndex)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CancelExecution requests cancellation of a running statement.
func (c *Client) CancelExecution(ctx context.Context, statementID string) error {
	path := fmt.Sprintf("/api/2.0/sql/statements/%s/cancel", statementID)
	return c.doJSON(ctx, http.MethodPost, path, nil, nil)
}
