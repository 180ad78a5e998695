// Package clean turns the raw concatenated table into typed, validated
// trip records: canonical user_type column, parsed timestamps, derived
// calendar and duration columns, and the ride-length validity filter.
package clean

import (
	"fmt"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/TFMV/pedal/loader"
	"github.com/TFMV/pedal/trip"
)

// maxAnomalyExamples caps how many offending ride IDs are kept per
// anomaly class for the diagnostic summary.
const maxAnomalyExamples = 5

var (
	cleanLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "pedal_clean_latency_seconds",
		Help: "Cleaning stage latency distribution",
	})
	negativeDurations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pedal_trips_negative_duration_total",
		Help: "Trips dropped for zero or negative ride length",
	})
	excessiveDurations = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "pedal_trips_excessive_duration_total",
		Help: "Trips dropped for ride length of a day or longer",
	})
)

func init() {
	prometheus.MustRegister(cleanLatency, negativeDurations, excessiveDurations)
}

// MissingColumnError reports an expected column absent from the header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("missing column %q in input header", e.Column)
}

// ParseError reports an unparsable timestamp or numeric field. The run
// aborts on the first one; there is no skip-and-continue mode.
type ParseError struct {
	File   string
	Line   int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparsable %s %q at %s line %d: %v",
		e.Column, e.Value, e.File, e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Result is the cleaned dataset plus the duration-anomaly accounting.
// Negative and excessive rows are distinct anomaly classes and are
// counted separately rather than folded into one filter total.
type Result struct {
	Trips []trip.Trip

	Negative          int
	Excessive         int
	NegativeExamples  []string // ride IDs, up to maxAnomalyExamples
	ExcessiveExamples []string
}

// Kept returns the number of retained trips.
func (r *Result) Kept() int { return len(r.Trips) }

// Cleaner performs the rename/parse/derive/filter pass.
type Cleaner struct {
	log *zap.Logger
}

// New creates a Cleaner.
func New(log *zap.Logger) *Cleaner {
	return &Cleaner{log: log}
}

// Clean converts every raw row into a typed Trip, derives the calendar
// and duration columns, and filters to 0 < ride_length < 1440 minutes.
// A missing required column or an unparsable field aborts with an error
// naming the offending file and line.
func (c *Cleaner) Clean(table *loader.Table) (*Result, error) {
	start := time.Now()

	cols, err := resolveColumns(table.Header)
	if err != nil {
		return nil, err
	}

	result := &Result{Trips: make([]trip.Trip, 0, len(table.Rows))}
	for i := range table.Rows {
		row := &table.Rows[i]
		t, err := cols.parseRow(row)
		if err != nil {
			return nil, err
		}
		t.Derive()

		switch {
		case t.RideLength <= 0:
			result.Negative++
			negativeDurations.Inc()
			if len(result.NegativeExamples) < maxAnomalyExamples {
				result.NegativeExamples = append(result.NegativeExamples, t.RideID)
			}
		case t.RideLength >= trip.MaxRideMinutes:
			result.Excessive++
			excessiveDurations.Inc()
			if len(result.ExcessiveExamples) < maxAnomalyExamples {
				result.ExcessiveExamples = append(result.ExcessiveExamples, t.RideID)
			}
		default:
			result.Trips = append(result.Trips, t)
		}
	}
	cleanLatency.Observe(time.Since(start).Seconds())

	c.log.Info("Cleaned dataset",
		zap.Int("rows_in", len(table.Rows)),
		zap.Int("rows_kept", result.Kept()),
		zap.Int("negative_duration", result.Negative),
		zap.Int("excessive_duration", result.Excessive),
		zap.Strings("negative_examples", result.NegativeExamples),
		zap.Strings("excessive_examples", result.ExcessiveExamples))
	return result, nil
}

// columns holds the resolved field positions for one header layout.
type columns struct {
	rideID, rideableType int
	startedAt, endedAt   int
	startName, startID   int
	endName, endID       int
	startLat, startLng   int
	endLat, endLng       int
	userType             int
}

// resolveColumns locates every required column by name. The rider
// classification arrives under the ambiguous export name member_casual
// and is canonicalized to user_type; a previously cleaned combined file
// already carries user_type and is accepted as-is.
func resolveColumns(header []string) (*columns, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[name] = i
	}

	find := func(name string) (int, error) {
		i, ok := pos[name]
		if !ok {
			return 0, &MissingColumnError{Column: name}
		}
		return i, nil
	}

	cols := &columns{}
	var err error
	if cols.rideID, err = find("ride_id"); err != nil {
		return nil, err
	}
	if cols.rideableType, err = find("rideable_type"); err != nil {
		return nil, err
	}
	if cols.startedAt, err = find("started_at"); err != nil {
		return nil, err
	}
	if cols.endedAt, err = find("ended_at"); err != nil {
		return nil, err
	}
	if cols.startName, err = find("start_station_name"); err != nil {
		return nil, err
	}
	if cols.startID, err = find("start_station_id"); err != nil {
		return nil, err
	}
	if cols.endName, err = find("end_station_name"); err != nil {
		return nil, err
	}
	if cols.endID, err = find("end_station_id"); err != nil {
		return nil, err
	}
	if cols.startLat, err = find("start_lat"); err != nil {
		return nil, err
	}
	if cols.startLng, err = find("start_lng"); err != nil {
		return nil, err
	}
	if cols.endLat, err = find("end_lat"); err != nil {
		return nil, err
	}
	if cols.endLng, err = find("end_lng"); err != nil {
		return nil, err
	}
	if i, ok := pos["member_casual"]; ok {
		cols.userType = i
	} else if i, ok := pos["user_type"]; ok {
		cols.userType = i
	} else {
		return nil, &MissingColumnError{Column: "member_casual"}
	}
	return cols, nil
}

func (c *columns) parseRow(row *loader.Row) (trip.Trip, error) {
	t := trip.Trip{
		RideID:           row.Fields[c.rideID],
		RideableType:     row.Fields[c.rideableType],
		StartStationName: row.Fields[c.startName],
		StartStationID:   row.Fields[c.startID],
		EndStationName:   row.Fields[c.endName],
		EndStationID:     row.Fields[c.endID],
		UserType:         row.Fields[c.userType],
	}

	var err error
	if t.StartedAt, err = parseTime(row, "started_at", row.Fields[c.startedAt]); err != nil {
		return trip.Trip{}, err
	}
	if t.EndedAt, err = parseTime(row, "ended_at", row.Fields[c.endedAt]); err != nil {
		return trip.Trip{}, err
	}
	if t.StartLat, err = parseCoord(row, "start_lat", row.Fields[c.startLat]); err != nil {
		return trip.Trip{}, err
	}
	if t.StartLng, err = parseCoord(row, "start_lng", row.Fields[c.startLng]); err != nil {
		return trip.Trip{}, err
	}
	if t.EndLat, err = parseCoord(row, "end_lat", row.Fields[c.endLat]); err != nil {
		return trip.Trip{}, err
	}
	if t.EndLng, err = parseCoord(row, "end_lng", row.Fields[c.endLng]); err != nil {
		return trip.Trip{}, err
	}
	return t, nil
}

func parseTime(row *loader.Row, column, value string) (time.Time, error) {
	ts, err := time.Parse(trip.TimeLayout, value)
	if err != nil {
		return time.Time{}, &ParseError{
			File: row.File, Line: row.Line, Column: column, Value: value, Err: err,
		}
	}
	return ts, nil
}

func parseCoord(row *loader.Row, column, value string) (*float64, error) {
	if value == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, &ParseError{
			File: row.File, Line: row.Line, Column: column, Value: value, Err: err,
		}
	}
	return &v, nil
}
