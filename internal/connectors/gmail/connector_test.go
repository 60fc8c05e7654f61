package gmail

import (
	"context"
	"encoding/base64"
	"testing"

	"facturas/internal/config"
)

func TestDecodeBase64URL(t *testing.T) {
	raw := []byte("Subject: Factura 4587\r\n\r\n\xff\xfe total")
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding} {
		got, err := decodeBase64URL(enc.EncodeToString(raw))
		if err != nil {
			t.Fatal(err)
		}
		if string(got) != string(raw) {
			t.Fatalf("decoded %q", got)
		}
	}
	if _, err := decodeBase64URL("no es base64!"); err == nil {
		t.Fatal("expected error")
	}
}

func TestNewConnectorRequiresRefreshToken(t *testing.T) {
	cfg := config.Config{GmailClientID: "id", GmailClientSecret: "secret"}
	if _, err := NewConnector(context.Background(), cfg); err == nil {
		t.Fatal("expected missing GMAIL_REFRESH_TOKEN error")
	}
}
