package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	stations "andon-board/internal/stations/domain"
)

// Content types for the rendered documents.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// reportColumns is the status order used by every export.
var reportColumns = []string{
	string(stations.StatusNormal),
	string(stations.StatusWarning),
	string(stations.StatusError),
	string(stations.StatusMaintenance),
	stations.SegmentFuture,
}

// ReportRow is one station line of the daily report.
type ReportRow struct {
	StationID string
	Name      string
	Zone      string
	Status    stations.Status
	Seconds   map[string]int64
}

// DailyReport is the time spent per status by every station for one day.
type DailyReport struct {
	Date        string
	GeneratedAt time.Time
	Rows        []ReportRow
}

// NewDailyReport pairs stations with their timelines. Both slices are
// expected in the same order; timelines without a station are skipped.
func NewDailyReport(date string, list []stations.Station, timelines []stations.Timeline, generatedAt time.Time) DailyReport {
	byID := make(map[string]stations.Timeline, len(timelines))
	for _, tl := range timelines {
		byID[tl.StationID] = tl
	}
	report := DailyReport{Date: date, GeneratedAt: generatedAt}
	for _, st := range list {
		tl, ok := byID[st.ID]
		if !ok {
			continue
		}
		report.Rows = append(report.Rows, ReportRow{
			StationID: st.ID,
			Name:      st.Name,
			Zone:      st.Zone,
			Status:    st.Status,
			Seconds:   tl.Seconds,
		})
	}
	return report
}

// FormatSeconds renders a duration as HH:MM.
func FormatSeconds(sec int64) string {
	if sec < 0 {
		sec = 0
	}
	return fmt.Sprintf("%02d:%02d", sec/3600, (sec%3600)/60)
}

// BuildDailyReportPDF renders the daily report as a landscape table.
func BuildDailyReportPDF(report DailyReport) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Andon Daily Status Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Date: %s", report.Date))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stations: %d", len(report.Rows)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(25, 6, "Station", "1", 0, "C", false, 0, "")
	pdf.CellFormat(55, 6, "Name", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Zone", "1", 0, "C", false, 0, "")
	for _, col := range reportColumns {
		pdf.CellFormat(30, 6, col, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, row := range report.Rows {
		pdf.CellFormat(25, 6, row.StationID, "1", 0, "L", false, 0, "")
		pdf.CellFormat(55, 6, row.Name, "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, row.Zone, "1", 0, "L", false, 0, "")
		for _, col := range reportColumns {
			pdf.CellFormat(30, 6, FormatSeconds(row.Seconds[col]), "1", 0, "R", false, 0, "")
		}
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildDailyReportXLSX renders the daily report with a summary sheet and a
// per-station sheet of seconds in each status.
func BuildDailyReportXLSX(report DailyReport) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	stationsSheet := "stations"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(stationsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Andon Daily Status Report")
	_ = f.SetCellValue(summarySheet, "A3", "Date")
	_ = f.SetCellValue(summarySheet, "B3", report.Date)
	_ = f.SetCellValue(summarySheet, "A4", "Generated")
	_ = f.SetCellValue(summarySheet, "B4", report.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Stations")
	_ = f.SetCellValue(summarySheet, "B5", len(report.Rows))

	header := append([]string{"Station", "Name", "Zone", "Current"}, reportColumns...)
	for i, title := range header {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(stationsSheet, cell, title)
	}
	for i, row := range report.Rows {
		r := i + 2
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("A%d", r), row.StationID)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("B%d", r), row.Name)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("C%d", r), row.Zone)
		_ = f.SetCellValue(stationsSheet, fmt.Sprintf("D%d", r), string(row.Status))
		for j, col := range reportColumns {
			cell, _ := excelize.CoordinatesToCellName(j+5, r)
			_ = f.SetCellValue(stationsSheet, cell, row.Seconds[col])
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildTimelineXLSX renders one station's day as a segment list.
func BuildTimelineXLSX(st stations.Station, tl stations.Timeline, loc *time.Location) ([]byte, error) {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()
	summarySheet := "summary"
	segmentsSheet := "segments"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(segmentsSheet); err != nil {
		return nil, err
	}

	_ = f.SetCellValue(summarySheet, "A1", "Station Timeline")
	_ = f.SetCellValue(summarySheet, "A3", "Station")
	_ = f.SetCellValue(summarySheet, "B3", st.ID)
	_ = f.SetCellValue(summarySheet, "A4", "Name")
	_ = f.SetCellValue(summarySheet, "B4", st.Name)
	_ = f.SetCellValue(summarySheet, "A5", "Date")
	_ = f.SetCellValue(summarySheet, "B5", tl.DayStart.In(loc).Format("2006-01-02"))
	for i, col := range reportColumns {
		r := i + 7
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", r), col)
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", r), FormatSeconds(tl.Seconds[col]))
	}

	_ = f.SetCellValue(segmentsSheet, "A1", "Start")
	_ = f.SetCellValue(segmentsSheet, "B1", "End")
	_ = f.SetCellValue(segmentsSheet, "C1", "Status")
	_ = f.SetCellValue(segmentsSheet, "D1", "Seconds")
	for i, seg := range tl.Segments {
		r := i + 2
		_ = f.SetCellValue(segmentsSheet, fmt.Sprintf("A%d", r), seg.Start.In(loc).Format("15:04:05"))
		_ = f.SetCellValue(segmentsSheet, fmt.Sprintf("B%d", r), seg.End.In(loc).Format("15:04:05"))
		_ = f.SetCellValue(segmentsSheet, fmt.Sprintf("C%d", r), seg.Status)
		_ = f.SetCellValue(segmentsSheet, fmt.Sprintf("D%d", r), int64(seg.Duration()/time.Second))
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
