package royalty

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	domain "github.com/minegov/royalty-engine/internal/domain/royalty"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/logging"
	"github.com/minegov/royalty-engine/internal/infrastructure/monitoring/prometheus"
	"github.com/minegov/royalty-engine/pkg/errors"
)

// exportHeader is the fixed column set of a record export.
var exportHeader = []string{
	"ID", "Entity", "Mineral", "Production Volume", "Royalty Amount",
	"Period Start", "Period End", "Status", "Created Date",
}

const exportPageSize = 500

// ExportService writes filtered record sets as CSV, either to a caller
// supplied writer or as an artifact in object storage.
type ExportService struct {
	records *Service
	store   ObjectStore
	metrics *prometheus.AppMetrics
	logger  logging.Logger
}

// NewExportService wires the exporter. The object store may be nil when
// only streaming exports are needed.
func NewExportService(records *Service, store ObjectStore, metrics *prometheus.AppMetrics, logger logging.Logger) *ExportService {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &ExportService{
		records: records,
		store:   store,
		metrics: metrics,
		logger:  logger.Named("app.export"),
	}
}

// ExportCSV streams every record matching the filter to w and returns the
// number of data rows written. The filter's own pagination is ignored; the
// exporter pages through the full result set itself.
func (s *ExportService) ExportCSV(ctx context.Context, filter domain.Filter, w io.Writer) (int, error) {
	start := time.Now()
	rows, err := s.writeCSV(ctx, filter, w)
	s.observe("stream", start, err)
	return rows, err
}

// ExportToStore generates the CSV in memory and uploads it to object
// storage under objectName. It returns the artifact location and row count.
func (s *ExportService) ExportToStore(ctx context.Context, filter domain.Filter, objectName string) (string, int, error) {
	if s.store == nil {
		return "", 0, errors.New(errors.CodeExportFailed, "no object store configured")
	}

	start := time.Now()
	var buf bytes.Buffer
	rows, err := s.writeCSV(ctx, filter, &buf)
	if err != nil {
		s.observe("minio", start, err)
		return "", 0, err
	}

	location, err := s.store.Put(ctx, objectName, bytes.NewReader(buf.Bytes()), int64(buf.Len()), "text/csv")
	s.observe("minio", start, err)
	if err != nil {
		return "", 0, errors.Wrap(err, errors.CodeExportFailed, "failed to upload export artifact")
	}

	s.logger.Info("export artifact uploaded",
		logging.String("object", objectName),
		logging.Int("rows", rows),
	)
	return location, rows, nil
}

func (s *ExportService) writeCSV(ctx context.Context, filter domain.Filter, w io.Writer) (int, error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, errors.Wrap(err, errors.CodeExportFailed, "failed to write CSV header")
	}

	filter.Page = 1
	filter.PageSize = exportPageSize
	rows := 0
	for {
		page, err := s.records.List(ctx, filter)
		if err != nil {
			return rows, errors.Wrap(err, errors.CodeExportFailed, "failed to list records for export")
		}
		for _, r := range page.Records {
			if err := cw.Write(exportRow(r)); err != nil {
				return rows, errors.Wrap(err, errors.CodeExportFailed, "failed to write CSV row")
			}
			rows++
		}
		if filter.Page >= page.TotalPages || len(page.Records) == 0 {
			break
		}
		filter.Page++
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return rows, errors.Wrap(err, errors.CodeExportFailed, "failed to flush CSV output")
	}
	return rows, nil
}

func exportRow(r *domain.Record) []string {
	return []string{
		string(r.ID),
		r.Entity,
		r.Mineral,
		strconv.FormatFloat(r.ProductionVolume, 'f', -1, 64),
		fmt.Sprintf("%.2f", r.Breakdown.Total),
		r.ReportingPeriod.Start.Format(importDateLayout),
		r.ReportingPeriod.End.Format(importDateLayout),
		string(r.Status),
		r.CreatedAt.Format(importDateLayout),
	}
}

func (s *ExportService) observe(destination string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	if err == nil {
		s.metrics.ExportsTotal.WithLabelValues(destination).Inc()
	}
	s.metrics.ExportDuration.WithLabelValues(destination).Observe(time.Since(start).Seconds())
}
