package connectors

import (
	"context"

	"go.uber.org/zap"

	"facturas/internal/storage"
)

type FetchService struct {
	connector MailConnector
	store     *InboxStore
	logger    *zap.Logger
}

type FetchResult struct {
	Fetched int
	Stored  int
}

func NewFetchService(db *storage.DB, inboxDir string, connector MailConnector, logger *zap.Logger) *FetchService {
	return &FetchService{
		connector: connector,
		store:     NewInboxStore(db, inboxDir),
		logger:    logger,
	}
}

// FetchAndStore pulls up to max mails from label and drops the new ones
// into the inbox directory.
func (s *FetchService) FetchAndStore(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	stored := 0
	for _, msg := range messages {
		path, fresh, err := s.store.Store(msg)
		if err != nil {
			return FetchResult{Fetched: len(messages), Stored: stored}, err
		}
		if !fresh {
			continue
		}
		stored++
		s.logger.Info("mail stored",
			zap.String("provider", msg.Provider),
			zap.String("message_id", msg.MessageID),
			zap.String("subject", msg.Subject),
			zap.String("path", path),
		)
	}

	return FetchResult{Fetched: len(messages), Stored: stored}, nil
}
