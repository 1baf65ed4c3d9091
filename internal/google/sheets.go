package google

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"estateadmin/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const scheduleSheetName = "Schedule"

// SheetsService mirrors the visit schedule to a shared Google spreadsheet so
// agents without admin access can see the day's visits.
type SheetsService struct {
	service       *sheets.Service
	spreadsheetID string
}

func NewSheetsService(credentialsFile, spreadsheetID string) (*SheetsService, error) {
	ctx := context.Background()

	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return &SheetsService{
		service:       srv,
		spreadsheetID: spreadsheetID,
	}, nil
}

// TestConnection reads a single cell to verify credentials and sharing.
func (s *SheetsService) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, scheduleSheetName+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// ServiceAccountEmail returns the client_email of the credentials file, for
// the "share the spreadsheet with this account" setup step.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// UpdateScheduleSheet rewrites the schedule sheet from the daily reservation
// map (keyed by "2006-01-02"). The whole sheet is replaced on every refresh;
// the volume is small enough that diffing is not worth the complexity.
func (s *SheetsService) UpdateScheduleSheet(ctx context.Context, daily map[string][]*models.Reservation) error {
	clearRange := scheduleSheetName + "!A:Z"
	_, err := s.service.Spreadsheets.Values.Clear(s.spreadsheetID, clearRange, &sheets.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("unable to clear schedule sheet: %w", err)
	}

	dates := make([]string, 0, len(daily))
	for date := range daily {
		dates = append(dates, date)
	}
	sort.Strings(dates)

	values := [][]interface{}{
		{"Date", "Time", "Reservation", "Property", "Visitor", "Status", "Remark"},
	}
	for _, date := range dates {
		reservations := daily[date]
		sort.Slice(reservations, func(i, j int) bool {
			return reservations[i].TimeSlot < reservations[j].TimeSlot
		})
		for _, r := range reservations {
			values = append(values, []interface{}{
				date,
				r.TimeSlot,
				r.ID,
				r.PropertyID,
				r.UserID,
				statusMark(r.Status) + " " + string(r.Status),
				r.AdminRemark,
			})
		}
	}

	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID,
		fmt.Sprintf("%s!A1:G%d", scheduleSheetName, len(values)),
		&sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("unable to update schedule sheet: %w", err)
	}
	return nil
}

func statusMark(status models.ReservationStatus) string {
	switch status {
	case models.StatusAccepted:
		return "✅"
	case models.StatusPending:
		return "⏳"
	case models.StatusRefused, models.StatusCancelled:
		return "❌"
	}
	return "❓"
}
