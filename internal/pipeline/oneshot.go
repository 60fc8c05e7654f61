package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"facturas/internal"
)

// RunOnce extracts a single document and writes its review sheet without
// storing anything.
func (s *ProcessingService) RunOnce(ctx context.Context, input, output string) (internal.ExtractionResult, error) {
	start := time.Now()
	kind, err := DocumentKindOf(input)
	if err != nil {
		return internal.ExtractionResult{}, err
	}
	doc, err := s.readDocument(ctx, input, kind)
	if err != nil {
		return internal.ExtractionResult{}, err
	}

	m, err := s.matcher()
	if err != nil {
		return internal.ExtractionResult{}, err
	}
	res := Extract(doc.text, m)

	invoice := &internal.InvoiceRow{
		SourcePath:    input,
		Kind:          kind,
		InvoiceNumber: res.InvoiceNumber,
		Total:         res.Total,
		ItemCount:     len(res.Items),
	}
	if res.Date != nil {
		issued := res.Date.Format(time.DateOnly)
		invoice.IssuedAt = &issued
	}
	if err := ExportReviewXLSX(invoice, reviewRows(res.Items, s.alternatives(m, res.Items)), output); err != nil {
		return internal.ExtractionResult{}, err
	}

	s.logger.Info("one-off run done",
		zap.String("input", input),
		zap.String("output", output),
		zap.Int("items", len(res.Items)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}
