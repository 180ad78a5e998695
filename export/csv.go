// Package export writes the cleaned dataset back out for downstream
// reporting: the combined CSV with the derived columns, the long-form
// monthly table the charting tool consumes, and Arrow IPC snapshots.
package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/TFMV/pedal/agg"
	"github.com/TFMV/pedal/trip"
)

// WriteCombined writes the cleaned trips as one CSV with the original
// columns plus the four derived ones, under the canonical header.
func WriteCombined(path string, trips []trip.Trip) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	w := csv.NewWriter(file)
	if err := w.Write(trip.CleanedColumns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range trips {
		if err := w.Write(combinedRow(&trips[i])); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}
	w.Flush()
	return w.Error()
}

func combinedRow(t *trip.Trip) []string {
	return []string{
		t.RideID,
		t.RideableType,
		t.StartedAt.Format(trip.TimeLayout),
		t.EndedAt.Format(trip.TimeLayout),
		t.StartStationName,
		t.StartStationID,
		t.EndStationName,
		t.EndStationID,
		formatCoord(t.StartLat),
		formatCoord(t.StartLng),
		formatCoord(t.EndLat),
		formatCoord(t.EndLng),
		t.UserType,
		t.Day,
		strconv.Itoa(t.DayNumber),
		t.Month,
		strconv.FormatFloat(t.RideLength, 'f', -1, 64),
	}
}

func formatCoord(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

// ReadCombined loads a combined CSV produced by WriteCombined, derived
// columns included, so downstream runs can skip the raw monthly files.
func ReadCombined(path string) ([]trip.Trip, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read %q: %w", path, err)
	}
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})

	r := csv.NewReader(bytes.NewReader(content))
	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header of %q: %w", path, err)
	}
	if len(header) != len(trip.CleanedColumns) {
		return nil, fmt.Errorf("%q is not a combined export: got %d columns, want %d",
			path, len(header), len(trip.CleanedColumns))
	}
	for i, name := range trip.CleanedColumns {
		if header[i] != name {
			return nil, fmt.Errorf("%q is not a combined export: column %d is %q, want %q",
				path, i, header[i], name)
		}
	}

	var trips []trip.Trip
	line := 1
	for {
		fields, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read %q line %d: %w", path, line+1, err)
		}
		line++
		t, err := combinedTrip(path, line, fields)
		if err != nil {
			return nil, err
		}
		trips = append(trips, t)
	}
	return trips, nil
}

func combinedTrip(path string, line int, fields []string) (trip.Trip, error) {
	t := trip.Trip{
		RideID:           fields[trip.ColRideID],
		RideableType:     fields[trip.ColRideableType],
		StartStationName: fields[trip.ColStartStationName],
		StartStationID:   fields[trip.ColStartStationID],
		EndStationName:   fields[trip.ColEndStationName],
		EndStationID:     fields[trip.ColEndStationID],
		UserType:         fields[trip.ColUserType],
		Day:              fields[trip.ColDay],
		Month:            fields[trip.ColMonth],
	}

	var err error
	if t.StartedAt, err = time.Parse(trip.TimeLayout, fields[trip.ColStartedAt]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad started_at at %s line %d: %w", path, line, err)
	}
	if t.EndedAt, err = time.Parse(trip.TimeLayout, fields[trip.ColEndedAt]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad ended_at at %s line %d: %w", path, line, err)
	}
	if t.StartLat, err = parseCoord(fields[trip.ColStartLat]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad start_lat at %s line %d: %w", path, line, err)
	}
	if t.StartLng, err = parseCoord(fields[trip.ColStartLng]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad start_lng at %s line %d: %w", path, line, err)
	}
	if t.EndLat, err = parseCoord(fields[trip.ColEndLat]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad end_lat at %s line %d: %w", path, line, err)
	}
	if t.EndLng, err = parseCoord(fields[trip.ColEndLng]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad end_lng at %s line %d: %w", path, line, err)
	}
	if t.DayNumber, err = strconv.Atoi(fields[trip.ColDayNumber]); err != nil {
		return trip.Trip{}, fmt.Errorf("bad day_number at %s line %d: %w", path, line, err)
	}
	if t.RideLength, err = strconv.ParseFloat(fields[trip.ColRideLength], 64); err != nil {
		return trip.Trip{}, fmt.Errorf("bad ride_length at %s line %d: %w", path, line, err)
	}
	return t, nil
}

func parseCoord(value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// WriteMonthly writes the long-form (month, user_type, ride_count) table.
func WriteMonthly(path string, rows []agg.MonthCount) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	w := csv.NewWriter(file)
	if err := w.Write([]string{"month", "user_type", "ride_count"}); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range rows {
		record := []string{row.Month, row.UserType, strconv.FormatInt(row.Rides, 10)}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s/%s: %w", row.Month, row.UserType, err)
		}
	}
	w.Flush()
	return w.Error()
}
