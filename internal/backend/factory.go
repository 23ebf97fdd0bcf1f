package backend

import (
	"context"
	"fmt"
	"log/slog"

	gsheet "fundledger/internal/sheets/google"
	"fundledger/internal/sheets/memory"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

func (f *DefaultFactory) CreateSink(ctx context.Context, config Config) (*SinkResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case NoneBackend:
		f.logger.Info("Mirror disabled")
		return &SinkResult{Type: NoneBackend}, nil
	case MemoryBackend:
		f.logger.Info("Initialized memory mirror")
		return &SinkResult{Type: MemoryBackend, Writer: memory.New()}, nil
	case SheetsBackend:
		return f.createSheetsSink(ctx, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSheetsSink(ctx context.Context, config Config) (*SinkResult, error) {
	cli, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   config.GoogleSpreadsheetID,
		SheetName:       config.GoogleSheetName,
		CredentialsJSON: config.GoogleServiceAccountJSON,
		CredentialsFile: config.GoogleServiceAccountFile,
		OAuthClientJSON: config.GoogleOAuthClientJSON,
		OAuthClientFile: config.GoogleOAuthClientFile,
		OAuthTokenFile:  config.GoogleOAuthTokenFile,
		Location:        config.Location,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	if err := cli.EnsureHeader(ctx); err != nil {
		f.logger.Warn("Could not verify sheet header", "error", err)
	}

	f.logger.Info("Initialized Google Sheets mirror", "sheet", config.GoogleSheetName)
	return &SinkResult{Type: SheetsBackend, Writer: cli}, nil
}
