package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"estateadmin/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	reservationsSheet = "Reservations"
	propertiesSheet   = "Properties"
)

// statusFills mirror the color coding used on the admin screens.
var statusFills = map[models.ReservationStatus]string{
	models.StatusPending:   "#FFEB9C",
	models.StatusAccepted:  "#C6EFCE",
	models.StatusRefused:   "#FFC7CE",
	models.StatusCancelled: "#D9D9D9",
}

// ExcelExporter writes reservation and property workbooks under dir.
type ExcelExporter struct {
	dir    string
	logger *zerolog.Logger
}

func NewExcelExporter(dir string, logger *zerolog.Logger) *ExcelExporter {
	return &ExcelExporter{dir: dir, logger: logger}
}

// ReservationRow pairs a reservation with its display strings.
type ReservationRow struct {
	Reservation   *models.Reservation
	PropertyTitle string
	UserName      string
	UserEmail     string
}

// WriteReservationsWorkbook renders the reservation log, one row per
// reservation, colored by status. Returns the file path.
func (e *ExcelExporter) WriteReservationsWorkbook(ctx context.Context, rows []ReservationRow) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(reservationsSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Property", "Visitor", "Email", "Date", "Time", "Status", "Remark", "Created At"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(reservationsSheet, cell, header)
		_ = f.SetCellStyle(reservationsSheet, cell, cell, headerStyle)
	}

	for i, row := range rows {
		r := row.Reservation
		rowIdx := i + 2
		values := []interface{}{
			r.ID,
			row.PropertyTitle,
			row.UserName,
			row.UserEmail,
			r.Date.Format("2006-01-02"),
			r.TimeSlot,
			string(r.Status),
			r.AdminRemark,
			r.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			_ = f.SetCellValue(reservationsSheet, cell, v)
		}

		if fill, ok := statusFills[r.Status]; ok {
			style, err := f.NewStyle(&excelize.Style{
				Fill: excelize.Fill{Type: "pattern", Color: []string{fill}, Pattern: 1},
			})
			if err == nil {
				cell, _ := excelize.CoordinatesToCellName(7, rowIdx)
				_ = f.SetCellStyle(reservationsSheet, cell, cell, style)
			}
		}
	}

	_ = f.SetColWidth(reservationsSheet, "A", "A", 8)
	_ = f.SetColWidth(reservationsSheet, "B", "D", 25)
	_ = f.SetColWidth(reservationsSheet, "E", "G", 12)
	_ = f.SetColWidth(reservationsSheet, "H", "I", 22)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("reservations_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(rows)).Msg("reservations workbook created")
	return filePath, nil
}

// WritePropertiesWorkbook renders the property catalogue.
func (e *ExcelExporter) WritePropertiesWorkbook(ctx context.Context, properties []*models.Property) (string, error) {
	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(propertiesSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headers := []string{"ID", "Title", "Type", "Status", "Price", "Address", "City", "Active", "Views", "Created At"}
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(propertiesSheet, cell, header)
		_ = f.SetCellStyle(propertiesSheet, cell, cell, headerStyle)
	}

	for i, p := range properties {
		rowIdx := i + 2
		values := []interface{}{
			p.ID, p.Title, p.Type, string(p.Status), p.Price,
			p.Address, p.City, boolToYesNo(p.IsActive), p.ViewCount,
			p.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, rowIdx)
			_ = f.SetCellValue(propertiesSheet, cell, v)
		}
	}

	_ = f.SetColWidth(propertiesSheet, "A", "A", 8)
	_ = f.SetColWidth(propertiesSheet, "B", "B", 30)
	_ = f.SetColWidth(propertiesSheet, "C", "E", 12)
	_ = f.SetColWidth(propertiesSheet, "F", "G", 25)
	_ = f.SetColWidth(propertiesSheet, "H", "J", 12)

	_ = f.DeleteSheet("Sheet1")

	fileName := fmt.Sprintf("properties_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.dir, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %w", err)
	}

	e.logger.Info().Str("file_path", filePath).Int("rows", len(properties)).Msg("properties workbook created")
	return filePath, nil
}

func boolToYesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
