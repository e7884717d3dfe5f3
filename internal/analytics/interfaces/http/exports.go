package http

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	alerts "pasture-cloud/internal/alerts/domain"
	"pasture-cloud/internal/httpapi"
	"pasture-cloud/internal/observability/metrics"
)

// AlertLister reads alert rows for export.
type AlertLister interface {
	ListAlerts(ctx context.Context, filter alerts.ListFilter) ([]alerts.Alert, error)
}

// ExportHandler serves alert history downloads under /api/v1/exports.
type ExportHandler struct {
	lister AlertLister
}

// NewExportHandler constructs an export handler.
func NewExportHandler(lister AlertLister) (*ExportHandler, error) {
	if lister == nil {
		return nil, errors.New("exports: nil alert lister")
	}
	return &ExportHandler{lister: lister}, nil
}

// ServeHTTP handles /api/v1/exports/alerts.{csv,xlsx,pdf}.
func (h *ExportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var format string
	switch r.URL.Path {
	case "/api/v1/exports/alerts.csv":
		format = "csv"
	case "/api/v1/exports/alerts.xlsx":
		format = "xlsx"
	case "/api/v1/exports/alerts.pdf":
		format = "pdf"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}

	filter, err := exportFilter(r)
	if err != nil {
		metrics.IncExport(format, "error")
		httpapi.Fail(w, fmt.Errorf("%w: %v", httpapi.ErrValidation, err))
		return
	}
	list, err := h.lister.ListAlerts(r.Context(), filter)
	if err != nil {
		metrics.IncExport(format, "error")
		httpapi.Fail(w, err)
		return
	}

	var body []byte
	var contentType string
	switch format {
	case "csv":
		body, err = BuildAlertsCSV(list)
		contentType = "text/csv"
	case "xlsx":
		body, err = BuildAlertsXLSX(list)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		body, err = BuildAlertsPDF(list)
		contentType = "application/pdf"
	}
	if err != nil {
		metrics.IncExport(format, "error")
		httpapi.Fail(w, err)
		return
	}

	metrics.IncExport(format, "ok")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="alerts.`+format+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func exportFilter(r *http.Request) (alerts.ListFilter, error) {
	q := r.URL.Query()
	filter := alerts.ListFilter{
		FarmID:   q.Get("farm_id"),
		SensorID: q.Get("sensor_id"),
		Type:     q.Get("type"),
		Severity: q.Get("severity"),
	}
	if v := q.Get("resolved"); v != "" {
		resolved, err := strconv.ParseBool(v)
		if err != nil {
			return alerts.ListFilter{}, errors.New("resolved must be a bool")
		}
		filter.Resolved = &resolved
	}
	var err error
	if filter.From, filter.To, err = parseWindowValues(q.Get("from"), q.Get("to")); err != nil {
		return alerts.ListFilter{}, err
	}
	return filter, nil
}

func parseWindowValues(fromValue, toValue string) (time.Time, time.Time, error) {
	var from, to time.Time
	if fromValue != "" {
		t, err := time.Parse(time.RFC3339, fromValue)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("from must be RFC3339")
		}
		from = t
	}
	if toValue != "" {
		t, err := time.Parse(time.RFC3339, toValue)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("to must be RFC3339")
		}
		to = t
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}

var exportHeader = []string{
	"id", "farm_id", "zone_id", "sensor_id", "livestock_id", "type",
	"severity", "distance_measured", "threshold", "resolved", "resolved_by",
	"created_at", "message",
}

func exportRow(alert alerts.Alert) []string {
	return []string{
		alert.ID,
		alert.FarmID,
		alert.ZoneID,
		alert.SensorID,
		alert.LivestockID,
		alert.Type,
		alert.Severity,
		strconv.FormatFloat(alert.DistanceMeasured, 'f', 2, 64),
		strconv.FormatFloat(alert.Threshold, 'f', 2, 64),
		strconv.FormatBool(alert.Resolved),
		alert.ResolvedBy,
		alert.CreatedAt.Format(time.RFC3339),
		alert.Message,
	}
}

// BuildAlertsCSV renders alert history as CSV with a header row.
func BuildAlertsCSV(list []alerts.Alert) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write(exportHeader); err != nil {
		return nil, err
	}
	for _, alert := range list {
		if err := writer.Write(exportRow(alert)); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertsXLSX renders alert history as a single-sheet workbook.
func BuildAlertsXLSX(list []alerts.Alert) ([]byte, error) {
	f := excelize.NewFile()
	sheet := "alerts"
	f.SetSheetName("Sheet1", sheet)

	for col, name := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(sheet, cell, name)
	}
	for i, alert := range list {
		for col, value := range exportRow(alert) {
			cell, err := excelize.CoordinatesToCellName(col+1, i+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(sheet, cell, value)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildAlertsPDF renders alert history as a compact PDF table.
func BuildAlertsPDF(list []alerts.Alert) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Alert History")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Alerts: %d", len(list)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 8)
	pdf.CellFormat(40, 6, "Created", "1", 0, "C", false, 0, "")
	pdf.CellFormat(45, 6, "Sensor", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Type", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Severity", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Distance (cm)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Threshold (cm)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(25, 6, "Resolved", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 8)
	for _, alert := range list {
		pdf.CellFormat(40, 6, alert.CreatedAt.Format("2006-01-02 15:04:05"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(45, 6, alert.SensorID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, alert.Type, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, alert.Severity, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", alert.DistanceMeasured), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", alert.Threshold), "1", 0, "R", false, 0, "")
		pdf.CellFormat(25, 6, strconv.FormatBool(alert.Resolved), "1", 0, "C", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
