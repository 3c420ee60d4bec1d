package stream

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
)

// CSVHeader is the first line written by WriteCSV.
var CSVHeader = []string{"time", "frequency", "confidence"}

// WriteCSV writes rows as "time,frequency,confidence" with a header line.
// Numbers use the shortest representation that round-trips, in plain
// decimal notation unless the magnitude is below 1e-6 or at least 1e21.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{
			formatFloat(r.Time),
			formatFloat(r.Frequency),
			formatFloat(r.Confidence),
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PointRows converts points to rows, using the point timestamp.
func PointRows(points []Point) []Row {
	rows := make([]Row, len(points))
	for i, p := range points {
		rows[i] = Row{
			Time:       p.TimestampMs / 1000,
			Frequency:  p.PitchHz,
			Confidence: p.Confidence,
		}
	}
	return rows
}

func formatFloat(v float64) string {
	if a := math.Abs(v); a == 0 || (a >= 1e-6 && a < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
