package lifecycle

import (
	"context"
	"log/slog"
)

// NoopIndexer is a no-operation implementation of Indexer
type NoopIndexer struct{}

// NewNoopIndexer creates a new no-operation indexer
func NewNoopIndexer() Indexer {
	return &NoopIndexer{}
}

// Refresh does nothing and returns nil
func (n *NoopIndexer) Refresh(ctx context.Context, repositoryID string) error {
	return nil
}

// LoggingIndexer logs every refresh request
type LoggingIndexer struct {
	logger *slog.Logger
}

// NewLoggingIndexer creates an indexer that only logs. A nil logger uses slog.Default.
func NewLoggingIndexer(logger *slog.Logger) Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingIndexer{logger: logger}
}

// Refresh logs the request and returns nil
func (l *LoggingIndexer) Refresh(ctx context.Context, repositoryID string) error {
	l.logger.InfoContext(ctx, "index refresh requested", "repository_id", repositoryID)
	return nil
}
