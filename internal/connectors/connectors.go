package connectors

import (
	"context"
	"fmt"

	"facturas/internal"
	"facturas/internal/config"
	gmailconnector "facturas/internal/connectors/gmail"
	imapconnector "facturas/internal/connectors/imap"
)

// MailConnector pulls raw supplier mails from a mailbox.
type MailConnector interface {
	FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error)
}

// NewMailConnector builds the connector named by provider ("gmail" or "imap").
func NewMailConnector(ctx context.Context, provider string, cfg config.Config) (MailConnector, error) {
	switch provider {
	case "gmail":
		c, err := gmailconnector.NewConnector(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	case "imap":
		c, err := imapconnector.NewConnector(cfg)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unsupported mail provider: %q", provider)
	}
}
