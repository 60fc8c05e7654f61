package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	"go.uber.org/zap"

	"facturas/internal"
	"facturas/internal/util"
)

// emailText gathers invoice text from a message: OCR of PDF and image
// attachments, then the rows of any HTML tables in the body. The plain text
// body is used only when neither is present.
func (s *ProcessingService) emailText(ctx context.Context, raw []byte) (string, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return "", err
	}

	parts := []string{}
	if len(env.Attachments)+len(env.Inlines) > 0 {
		texts, err := s.attachmentTexts(ctx, append(env.Attachments, env.Inlines...))
		if err != nil {
			return "", err
		}
		parts = append(parts, texts...)
	}
	if env.HTML != "" {
		if lines := htmlTableLines(env.HTML); len(lines) > 0 {
			parts = append(parts, strings.Join(lines, "\n"))
		}
	}
	if len(parts) == 0 && strings.TrimSpace(env.Text) != "" {
		parts = append(parts, env.Text)
	}

	s.logger.Debug("email read",
		zap.String("subject", env.GetHeader("Subject")),
		zap.Int("attachments", len(env.Attachments)),
		zap.Int("parts", len(parts)),
	)
	return strings.Join(parts, "\n"), nil
}

// attachmentTexts writes each document attachment into a scratch directory
// for the OCR engine. The directory is removed before returning.
func (s *ProcessingService) attachmentTexts(ctx context.Context, parts []*enmime.Part) ([]string, error) {
	tmpDir, err := os.MkdirTemp("", "facturas-eml-*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tmpDir)

	out := []string{}
	for i, part := range parts {
		name := filepath.Base(strings.TrimSpace(part.FileName))
		if name == "." || name == "/" || name == "" {
			continue
		}
		kind, err := DocumentKindOf(name)
		if err != nil || (kind != internal.DocumentPDF && kind != internal.DocumentImage) {
			continue
		}

		path := filepath.Join(tmpDir, fmt.Sprintf("%02d_%s", i, name))
		if err := os.WriteFile(path, part.Content, 0o600); err != nil {
			return nil, fmt.Errorf("write attachment %s: %w", name, err)
		}
		if text := s.acquire(ctx, path); strings.TrimSpace(text) != "" {
			out = append(out, text)
		}
	}
	return out, nil
}

// htmlTableLines flattens every table row into one space-separated line.
func htmlTableLines(html string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	out := []string{}
	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := []string{}
		row.ChildrenFiltered("th,td").Each(func(_ int, cell *goquery.Selection) {
			if text := util.CollapseSpaces(cell.Text()); text != "" {
				cells = append(cells, text)
			}
		})
		if len(cells) > 0 {
			out = append(out, strings.Join(cells, " "))
		}
	})
	return out
}
