package sheets

import (
	"context"

	"fundledger/internal/core"
)

// Ports for outbound mirror adapters.
type (
	// OperationWriter appends one posted operation as a spreadsheet row and
	// returns a reference to the written range.
	OperationWriter interface {
		AppendOperation(ctx context.Context, op core.Operation) (rowRef string, err error)
	}

	// HeaderWriter is implemented by sinks that keep a header row.
	HeaderWriter interface {
		EnsureHeader(ctx context.Context) error
	}
)
