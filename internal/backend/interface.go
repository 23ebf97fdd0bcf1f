package backend

import (
	"context"
	"time"

	"fundledger/internal/sheets"
)

// CleanupFunc releases resources held by a sink.
type CleanupFunc func() error

// SinkResult is the mirror sink chosen by configuration. Writer is nil for
// the "none" backend.
type SinkResult struct {
	Type    BackendType
	Writer  sheets.OperationWriter
	Cleanup CleanupFunc
}

// Factory creates mirror sinks.
type Factory interface {
	CreateSink(ctx context.Context, config Config) (*SinkResult, error)
}

type Config struct {
	Type BackendType

	// Google Sheets specific
	GoogleSpreadsheetID      string
	GoogleSheetName          string
	GoogleServiceAccountJSON string
	GoogleServiceAccountFile string
	GoogleOAuthClientJSON    string
	GoogleOAuthClientFile    string
	GoogleOAuthTokenFile     string

	// Location for timestamps written to the sheet.
	Location *time.Location
}

// BackendType names a mirror sink.
type BackendType string

const (
	NoneBackend   BackendType = "none"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case NoneBackend, SheetsBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
