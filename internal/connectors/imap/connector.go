package imap

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	imapclient "github.com/emersion/go-imap/client"

	"facturas/internal"
	"facturas/internal/config"
)

// Connector reads unseen supplier mails from an IMAP folder. Only messages
// that carry something an invoice can be read from (a PDF or image part, or
// an HTML body) are downloaded.
type Connector struct {
	host     string
	port     int
	secure   bool
	user     string
	password string
	markSeen bool
	since    time.Duration
}

func NewConnector(cfg config.Config) (*Connector, error) {
	if err := cfg.Require("IMAP_HOST", cfg.IMAPHost); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_USER", cfg.IMAPUser); err != nil {
		return nil, err
	}
	if err := cfg.Require("IMAP_PASSWORD", cfg.IMAPPassword); err != nil {
		return nil, err
	}

	return &Connector{
		host:     cfg.IMAPHost,
		port:     cfg.IMAPPort,
		secure:   cfg.IMAPSecure,
		user:     cfg.IMAPUser,
		password: cfg.IMAPPassword,
		markSeen: cfg.IMAPMarkSeen,
		since:    time.Duration(cfg.MailSinceDays) * 24 * time.Hour,
	}, nil
}

func (c *Connector) dial() (*imapclient.Client, error) {
	addr := fmt.Sprintf("%s:%d", c.host, c.port)
	if c.secure {
		return imapclient.DialTLS(addr, &tls.Config{ServerName: c.host})
	}
	return imapclient.Dial(addr)
}

func (c *Connector) FetchInbox(ctx context.Context, label string, max int) ([]internal.FetchedMailMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	client, err := c.dial()
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	defer client.Logout()

	if err := client.Login(c.user, c.password); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}
	if _, err := client.Select(label, false); err != nil {
		return nil, fmt.Errorf("imap select %s: %w", label, err)
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	if c.since > 0 {
		criteria.Since = time.Now().Add(-c.since)
	}
	uids, err := client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("imap search: %w", err)
	}
	if len(uids) > max {
		uids = uids[len(uids)-max:]
	}
	if len(uids) == 0 {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	wanted, err := invoiceCandidates(client, uids)
	if err != nil {
		return nil, err
	}
	if wanted.Empty() {
		return nil, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := fetchRaw(client, wanted)
	if err != nil {
		return nil, err
	}

	if c.markSeen {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		if err := client.UidStore(wanted, item, []interface{}{imap.SeenFlag}, nil); err != nil {
			return nil, fmt.Errorf("imap mark seen: %w", err)
		}
	}
	return out, nil
}

// invoiceCandidates fetches body structures only and keeps the uids whose
// message has a readable invoice part.
func invoiceCandidates(client *imapclient.Client, uids []uint32) (*imap.SeqSet, error) {
	set := new(imap.SeqSet)
	set.AddNum(uids...)

	messages := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- client.UidFetch(set, []imap.FetchItem{imap.FetchUid, imap.FetchBodyStructure}, messages)
	}()

	wanted := new(imap.SeqSet)
	for msg := range messages {
		if msg != nil && hasInvoicePart(msg.BodyStructure) {
			wanted.AddNum(msg.Uid)
		}
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch structure: %w", err)
	}
	return wanted, nil
}

func hasInvoicePart(bs *imap.BodyStructure) bool {
	if bs == nil {
		return false
	}
	mime := strings.ToLower(bs.MIMEType + "/" + bs.MIMESubType)
	switch {
	case mime == "application/pdf", strings.HasPrefix(mime, "image/"), mime == "text/html":
		return true
	case mime == "application/octet-stream":
		name, _ := bs.Filename()
		name = strings.ToLower(name)
		if strings.HasSuffix(name, ".pdf") || strings.HasSuffix(name, ".jpg") || strings.HasSuffix(name, ".png") {
			return true
		}
	}
	for _, part := range bs.Parts {
		if hasInvoicePart(part) {
			return true
		}
	}
	return false
}

// fetchRaw downloads the full RFC 822 source of the given uids. The fetch
// peeks so that flags stay untouched until the caller marks them.
func fetchRaw(client *imapclient.Client, uids *imap.SeqSet) ([]internal.FetchedMailMessage, error) {
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchInternalDate, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() { done <- client.UidFetch(uids, items, messages) }()

	var out []internal.FetchedMailMessage
	var readErr error
	for msg := range messages {
		// keep draining after a failure so the fetch goroutine can finish
		if msg == nil || readErr != nil {
			continue
		}
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			readErr = fmt.Errorf("imap read uid %d: %w", msg.Uid, err)
			continue
		}
		out = append(out, toFetched(msg, raw))
	}
	if err := <-done; err != nil {
		return nil, fmt.Errorf("imap fetch: %w", err)
	}
	if readErr != nil {
		return nil, readErr
	}
	return out, nil
}

func toFetched(msg *imap.Message, raw []byte) internal.FetchedMailMessage {
	fetched := internal.FetchedMailMessage{
		Provider:   "imap",
		MessageID:  fmt.Sprintf("imap-%d", msg.Uid),
		ReceivedAt: time.Now().UTC().Format(time.RFC3339),
		Raw:        raw,
	}
	if env := msg.Envelope; env != nil {
		if env.MessageId != "" {
			fetched.MessageID = env.MessageId
		}
		fetched.Subject = env.Subject
		fetched.From = formatAddresses(env.From)
	}
	if !msg.InternalDate.IsZero() {
		fetched.ReceivedAt = msg.InternalDate.UTC().Format(time.RFC3339)
	}
	return fetched
}

func formatAddresses(addrs []*imap.Address) string {
	if len(addrs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a == nil {
			continue
		}
		email := strings.Trim(strings.Join([]string{a.MailboxName, a.HostName}, "@"), "@")
		if a.PersonalName != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.PersonalName, email))
		} else {
			parts = append(parts, email)
		}
	}
	return strings.Join(parts, ", ")
}
