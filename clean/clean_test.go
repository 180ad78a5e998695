package clean_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TFMV/pedal/clean"
	"github.com/TFMV/pedal/loader"
	"github.com/TFMV/pedal/trip"
)

// rawRow builds one export row with the given ride ID, user type, and
// trip duration.
func rawRow(id, userType string, start time.Time, duration time.Duration) loader.Row {
	return loader.Row{
		File: "202307-divvy-tripdata.csv",
		Line: 2,
		Fields: []string{
			id,
			"classic_bike",
			start.Format(trip.TimeLayout),
			start.Add(duration).Format(trip.TimeLayout),
			"Clark St", "13", "Elm St", "42",
			"41.9", "-87.6", "41.8", "-87.7",
			userType,
		},
	}
}

func rawTable(rows ...loader.Row) *loader.Table {
	return &loader.Table{Header: trip.RawColumns, Rows: rows}
}

func TestCleanDerivesColumns(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 4, 10, 0, 0, 0, time.UTC) // a Tuesday
	table := rawTable(rawRow("A", "member", start, 15*time.Minute+30*time.Second))

	result, err := clean.New(zap.NewNop()).Clean(table)
	require.NoError(t, err)
	require.Equal(t, 1, result.Kept())

	got := result.Trips[0]
	assert.Equal(t, "member", got.UserType)
	assert.Equal(t, "Tuesday", got.Day)
	assert.Equal(t, 3, got.DayNumber)
	assert.Equal(t, "July", got.Month)
	assert.Equal(t, 15.5, got.RideLength)
	require.NotNil(t, got.StartLat)
	assert.Equal(t, 41.9, *got.StartLat)
}

func TestCleanCountsAnomaliesSeparately(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	var rows []loader.Row
	for i := 0; i < 92; i++ {
		rows = append(rows, rawRow(fmt.Sprintf("ok-%d", i), "member", start, 10*time.Minute))
	}
	for i := 0; i < 5; i++ {
		rows = append(rows, rawRow(fmt.Sprintf("neg-%d", i), "casual", start, -5*time.Minute))
	}
	for i := 0; i < 3; i++ {
		rows = append(rows, rawRow(fmt.Sprintf("long-%d", i), "casual", start, 25*time.Hour))
	}

	result, err := clean.New(zap.NewNop()).Clean(rawTable(rows...))
	require.NoError(t, err)

	assert.Equal(t, 5, result.Negative)
	assert.Equal(t, 3, result.Excessive)
	assert.Equal(t, 92, result.Kept())
	assert.Len(t, result.NegativeExamples, 5)
	assert.Len(t, result.ExcessiveExamples, 3)
	assert.Contains(t, result.NegativeExamples, "neg-0")
	assert.Contains(t, result.ExcessiveExamples, "long-0")

	for _, got := range result.Trips {
		assert.Greater(t, got.RideLength, 0.0)
		assert.Less(t, got.RideLength, trip.MaxRideMinutes)
	}
}

func TestCleanZeroDurationIsNegativeClass(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	table := rawTable(rawRow("Z", "member", start, 0))

	result, err := clean.New(zap.NewNop()).Clean(table)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Negative)
	assert.Equal(t, 0, result.Excessive)
	assert.Equal(t, 0, result.Kept())
}

func TestCleanExactDayIsExcessive(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	table := rawTable(rawRow("D", "member", start, 24*time.Hour))

	result, err := clean.New(zap.NewNop()).Clean(table)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Excessive)
	assert.Equal(t, 0, result.Kept())
}

func TestCleanMissingColumn(t *testing.T) {
	t.Parallel()

	header := make([]string, 0, len(trip.RawColumns)-1)
	for _, name := range trip.RawColumns {
		if name != "member_casual" {
			header = append(header, name)
		}
	}
	table := &loader.Table{Header: header}

	_, err := clean.New(zap.NewNop()).Clean(table)
	require.Error(t, err)

	var missing *clean.MissingColumnError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, "member_casual", missing.Column)
}

func TestCleanAcceptsCanonicalUserType(t *testing.T) {
	t.Parallel()

	header := make([]string, len(trip.RawColumns))
	copy(header, trip.RawColumns)
	header[len(header)-1] = "user_type"

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	table := &loader.Table{
		Header: header,
		Rows:   []loader.Row{rawRow("A", "casual", start, 10*time.Minute)},
	}

	result, err := clean.New(zap.NewNop()).Clean(table)
	require.NoError(t, err)
	require.Equal(t, 1, result.Kept())
	assert.Equal(t, "casual", result.Trips[0].UserType)
}

func TestCleanAbortsOnBadTimestamp(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	bad := rawRow("B", "member", start, 10*time.Minute)
	bad.Line = 17
	bad.Fields[2] = "07/03/2023 08:00"

	_, err := clean.New(zap.NewNop()).Clean(rawTable(bad))
	require.Error(t, err)

	var parseErr *clean.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "202307-divvy-tripdata.csv", parseErr.File)
	assert.Equal(t, 17, parseErr.Line)
	assert.Equal(t, "started_at", parseErr.Column)
	assert.Equal(t, "07/03/2023 08:00", parseErr.Value)
}

func TestCleanAbortsOnBadCoordinate(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	bad := rawRow("C", "member", start, 10*time.Minute)
	bad.Fields[8] = "not-a-latitude"

	_, err := clean.New(zap.NewNop()).Clean(rawTable(bad))
	require.Error(t, err)

	var parseErr *clean.ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Equal(t, "start_lat", parseErr.Column)
}

func TestCleanEmptyStationsAndCoords(t *testing.T) {
	t.Parallel()

	start := time.Date(2023, time.July, 3, 8, 0, 0, 0, time.UTC)
	dockless := rawRow("E", "casual", start, 10*time.Minute)
	dockless.Fields[4] = ""
	dockless.Fields[5] = ""
	dockless.Fields[8] = ""
	dockless.Fields[9] = ""

	result, err := clean.New(zap.NewNop()).Clean(rawTable(dockless))
	require.NoError(t, err)
	require.Equal(t, 1, result.Kept())

	got := result.Trips[0]
	assert.Empty(t, got.StartStationName)
	assert.Nil(t, got.StartLat)
	assert.Nil(t, got.StartLng)
	require.NotNil(t, got.EndLat)
}
