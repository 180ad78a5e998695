// Package trip defines the bike-share trip record and its Arrow layout.
package trip

import (
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// TimeLayout is the fixed textual format used by the monthly trip exports
// for started_at and ended_at.
const TimeLayout = "2006-01-02 15:04:05"

// MaxRideMinutes is the exclusive upper bound on a valid ride duration.
// Rides of a day or longer are treated as data-quality anomalies.
const MaxRideMinutes = 1440.0

// RawColumns is the header shared by every monthly export, in file order.
var RawColumns = []string{
	"ride_id",
	"rideable_type",
	"started_at",
	"ended_at",
	"start_station_name",
	"start_station_id",
	"end_station_name",
	"end_station_id",
	"start_lat",
	"start_lng",
	"end_lat",
	"end_lng",
	"member_casual",
}

// CleanedColumns is the combined-output header: the raw columns with
// member_casual renamed to user_type, followed by the derived columns.
var CleanedColumns = []string{
	"ride_id",
	"rideable_type",
	"started_at",
	"ended_at",
	"start_station_name",
	"start_station_id",
	"end_station_name",
	"end_station_id",
	"start_lat",
	"start_lng",
	"end_lat",
	"end_lng",
	"user_type",
	"day",
	"day_number",
	"month",
	"ride_length",
}

// Column positions in the cleaned Arrow schema.
const (
	ColRideID = iota
	ColRideableType
	ColStartedAt
	ColEndedAt
	ColStartStationName
	ColStartStationID
	ColEndStationName
	ColEndStationID
	ColStartLat
	ColStartLng
	ColEndLat
	ColEndLng
	ColUserType
	ColDay
	ColDayNumber
	ColMonth
	ColRideLength
)

// Pool is the Go memory allocator used by Arrow.
var Pool = memory.NewGoAllocator()

// Schema describes the cleaned dataset: the thirteen export columns with
// user_type canonicalized, plus the four derived columns.
var Schema = arrow.NewSchema([]arrow.Field{
	{Name: "ride_id", Type: arrow.BinaryTypes.String},
	{Name: "rideable_type", Type: arrow.BinaryTypes.String},
	{Name: "started_at", Type: arrow.FixedWidthTypes.Timestamp_s},
	{Name: "ended_at", Type: arrow.FixedWidthTypes.Timestamp_s},
	{Name: "start_station_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "start_station_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "end_station_name", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "end_station_id", Type: arrow.BinaryTypes.String, Nullable: true},
	{Name: "start_lat", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "start_lng", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "end_lat", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "end_lng", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
	{Name: "user_type", Type: arrow.BinaryTypes.String},
	{Name: "day", Type: arrow.BinaryTypes.String},
	{Name: "day_number", Type: arrow.PrimitiveTypes.Int64},
	{Name: "month", Type: arrow.BinaryTypes.String},
	{Name: "ride_length", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// Trip is one bike rental event. Station and coordinate fields are
// optional in the source data; missing stations are empty strings and
// missing coordinates are nil.
type Trip struct {
	RideID           string
	RideableType     string
	StartedAt        time.Time
	EndedAt          time.Time
	StartStationName string
	StartStationID   string
	EndStationName   string
	EndStationID     string
	StartLat         *float64
	StartLng         *float64
	EndLat           *float64
	EndLng           *float64
	UserType         string

	// Derived from the timestamps by Derive.
	Day        string
	DayNumber  int
	Month      string
	RideLength float64
}

// Derive fills in the calendar and duration columns from the parsed
// timestamps: weekday name, Sun=1..Sat=7 day number, month name, and
// ride length in fractional minutes.
func (t *Trip) Derive() {
	t.Day = t.StartedAt.Weekday().String()
	t.DayNumber = int(t.StartedAt.Weekday()) + 1
	t.Month = t.StartedAt.Month().String()
	t.RideLength = t.EndedAt.Sub(t.StartedAt).Minutes()
}

// Valid reports whether the derived ride length falls inside the
// accepted window.
func (t *Trip) Valid() bool {
	return t.RideLength > 0 && t.RideLength < MaxRideMinutes
}

// IsWeekend reports whether the trip started on a Saturday or Sunday.
func (t *Trip) IsWeekend() bool {
	return t.DayNumber == 1 || t.DayNumber == 7
}

// DayNumberOf maps a weekday name to its Sun=1..Sat=7 number. The second
// return value is false for anything that is not one of the seven names.
func DayNumberOf(day string) (int, bool) {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if d.String() == day {
			return int(d) + 1, true
		}
	}
	return 0, false
}

// MonthNumberOf maps a month name to 1..12 for calendar ordering.
func MonthNumberOf(month string) (int, bool) {
	for m := time.January; m <= time.December; m++ {
		if m.String() == month {
			return int(m), true
		}
	}
	return 0, false
}

// NewRecord builds one Arrow record batch from the given trips using the
// cleaned schema. The caller owns the returned record and must Release it.
func NewRecord(pool memory.Allocator, trips []Trip) arrow.Record {
	builder := array.NewRecordBuilder(pool, Schema)
	defer builder.Release()

	rideIDs := builder.Field(ColRideID).(*array.StringBuilder)
	rideables := builder.Field(ColRideableType).(*array.StringBuilder)
	started := builder.Field(ColStartedAt).(*array.TimestampBuilder)
	ended := builder.Field(ColEndedAt).(*array.TimestampBuilder)
	startNames := builder.Field(ColStartStationName).(*array.StringBuilder)
	startIDs := builder.Field(ColStartStationID).(*array.StringBuilder)
	endNames := builder.Field(ColEndStationName).(*array.StringBuilder)
	endIDs := builder.Field(ColEndStationID).(*array.StringBuilder)
	startLats := builder.Field(ColStartLat).(*array.Float64Builder)
	startLngs := builder.Field(ColStartLng).(*array.Float64Builder)
	endLats := builder.Field(ColEndLat).(*array.Float64Builder)
	endLngs := builder.Field(ColEndLng).(*array.Float64Builder)
	userTypes := builder.Field(ColUserType).(*array.StringBuilder)
	days := builder.Field(ColDay).(*array.StringBuilder)
	dayNumbers := builder.Field(ColDayNumber).(*array.Int64Builder)
	months := builder.Field(ColMonth).(*array.StringBuilder)
	rideLengths := builder.Field(ColRideLength).(*array.Float64Builder)

	appendNullable := func(b *array.StringBuilder, s string) {
		if s == "" {
			b.AppendNull()
			return
		}
		b.Append(s)
	}
	appendCoord := func(b *array.Float64Builder, v *float64) {
		if v == nil {
			b.AppendNull()
			return
		}
		b.Append(*v)
	}

	for i := range trips {
		t := &trips[i]
		rideIDs.Append(t.RideID)
		rideables.Append(t.RideableType)
		started.Append(arrow.Timestamp(t.StartedAt.Unix()))
		ended.Append(arrow.Timestamp(t.EndedAt.Unix()))
		appendNullable(startNames, t.StartStationName)
		appendNullable(startIDs, t.StartStationID)
		appendNullable(endNames, t.EndStationName)
		appendNullable(endIDs, t.EndStationID)
		appendCoord(startLats, t.StartLat)
		appendCoord(startLngs, t.StartLng)
		appendCoord(endLats, t.EndLat)
		appendCoord(endLngs, t.EndLng)
		userTypes.Append(t.UserType)
		days.Append(t.Day)
		dayNumbers.Append(int64(t.DayNumber))
		months.Append(t.Month)
		rideLengths.Append(t.RideLength)
	}

	return builder.NewRecord()
}
