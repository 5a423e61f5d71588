package domain

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Export file conventions.
const (
	CSVFilename    = "weather_data.csv"
	CSVContentType = "text/csv"
	CSVTimeLayout  = "2006-01-02 15:04:05-07:00"
)

// CSVHeader is the first row of every weather export.
var CSVHeader = []string{"date", "temperature_2m", "cloud_cover", "precipitation"}

// WriteCSV writes the full series as comma-separated values with a header
// row. Missing (NaN) values are written as empty cells.
func (s HourlyWeatherSeries) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, row := range s.Rows {
		record := []string{
			row.Time.UTC().Format(CSVTimeLayout),
			FormatValue(row.Temperature2m),
			FormatValue(row.CloudCover),
			FormatValue(row.Precipitation),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatValue renders a forecast value with the shortest exact representation.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
