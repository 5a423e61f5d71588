package domain

import (
	"strings"
	"time"
)

// Form fields, in the order Validate checks them.
const (
	FieldName      = "name"
	FieldStartDate = "start_date"
	FieldEndDate   = "end_date"
	FieldPostcode  = "postcode"
)

// MinStartDate is the earliest selectable trial start date.
var MinStartDate = time.Date(2000, time.January, 1, 0, 0, 0, 0, time.UTC)

// ValidationError names the first form field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// Validate checks the form and builds a TrialRecord. Checks run in field
// order and stop at the first violation; only that one is reported.
func Validate(in FormInput) (TrialRecord, *ValidationError) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return TrialRecord{}, &ValidationError{Field: FieldName, Message: "Please enter a Trial Name."}
	}
	if strings.TrimSpace(in.StartDate) == "" {
		return TrialRecord{}, &ValidationError{Field: FieldStartDate, Message: "Please select a Trial Start Date."}
	}
	if strings.TrimSpace(in.EndDate) == "" {
		return TrialRecord{}, &ValidationError{Field: FieldEndDate, Message: "Please select a Trial End Date."}
	}
	postcode := strings.TrimSpace(in.Postcode)
	if postcode == "" {
		return TrialRecord{}, &ValidationError{Field: FieldPostcode, Message: "Please enter a Location (Postcode)."}
	}

	start, err := time.Parse(DateLayout, strings.TrimSpace(in.StartDate))
	if err != nil {
		return TrialRecord{}, &ValidationError{Field: FieldStartDate, Message: "Trial Start Date must be a valid date (YYYY-MM-DD)."}
	}
	if start.Before(MinStartDate) {
		return TrialRecord{}, &ValidationError{Field: FieldStartDate, Message: "Trial Start Date must be on or after 2000-01-01."}
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(in.EndDate))
	if err != nil {
		return TrialRecord{}, &ValidationError{Field: FieldEndDate, Message: "Trial End Date must be a valid date (YYYY-MM-DD)."}
	}
	if end.Before(start) {
		return TrialRecord{}, &ValidationError{Field: FieldEndDate, Message: "Trial End Date must be on or after the Start Date."}
	}

	return TrialRecord{
		Name:         name,
		StartDate:    start,
		EndDate:      end,
		Postcode:     postcode,
		WantsWeather: in.Weather == WeatherYes,
	}, nil
}
