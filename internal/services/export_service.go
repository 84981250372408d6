package services

import (
	"context"
	"errors"
	"fmt"

	"cassa/internal/core"
	"cassa/internal/gateway"
	"cassa/internal/log"
	"cassa/internal/sheets"
)

var ErrExportDisabled = errors.New("export not configured")

// ExportService writes a group's month to the configured sheet.
type ExportService struct {
	gw     gateway.Gateway
	source WorkspaceSource
	writer sheets.MonthWriter
	logger *log.Logger
}

// NewExportService accepts a nil writer; exports then fail with ErrExportDisabled.
func NewExportService(gw gateway.Gateway, source WorkspaceSource, writer sheets.MonthWriter, logger *log.Logger) *ExportService {
	return &ExportService{gw: gw, source: source, writer: writer, logger: logger.WithComponent(log.ComponentSheets)}
}

func (s *ExportService) Enabled() bool { return s.writer != nil }

// Export writes one group's month and returns the writer's reference.
func (s *ExportService) Export(ctx context.Context, groupID string, year, month int) (string, error) {
	if s.writer == nil {
		return "", ErrExportDisabled
	}
	if !(core.YearMonth{Year: year, Month: month}).Valid() {
		return "", core.ErrInvalidMonth
	}

	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableGroups).Eq(gateway.ColID, groupID))
	if err != nil {
		return "", fmt.Errorf("load group: %w", err)
	}
	if len(rows) == 0 {
		return "", fmt.Errorf("group %s: %w", groupID, core.ErrNotFound)
	}
	g, err := gateway.Decode[core.Group](gateway.TableGroups, rows[0])
	if err != nil {
		return "", err
	}

	w, err := s.source.Get(ctx, groupID)
	if err != nil {
		return "", err
	}
	report := sheets.MonthReport{
		GroupName:    g.Name,
		Summary:      w.Summary(year, month),
		Income:       w.Income.InMonth(year, month),
		Expenses:     w.Expenses.InMonth(year, month),
		Installments: w.Installments.DueIn(year, month),
	}

	ref, err := s.writer.WriteMonth(ctx, report)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to export month",
			log.FieldOperation, log.OpExport,
			log.FieldGroupID, groupID,
			log.FieldYear, year,
			log.FieldMonth, month,
			log.FieldError, err)
		return "", fmt.Errorf("write month: %w", err)
	}
	s.logger.InfoContext(ctx, "Month exported",
		log.FieldGroupID, groupID,
		log.FieldYear, year,
		log.FieldMonth, month,
		"ref", ref)
	return ref, nil
}

// ExportAll exports the month of every group, continuing past failures.
func (s *ExportService) ExportAll(ctx context.Context, year, month int) (int, error) {
	if s.writer == nil {
		return 0, ErrExportDisabled
	}
	rows, err := s.gw.Select(ctx, gateway.From(gateway.TableGroups).OrderBy(gateway.ColID))
	if err != nil {
		return 0, fmt.Errorf("list groups: %w", err)
	}
	var (
		n    int
		errs []error
	)
	for _, r := range rows {
		id := r.ID()
		if _, err := s.Export(ctx, id, year, month); err != nil {
			errs = append(errs, fmt.Errorf("group %s: %w", id, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}
