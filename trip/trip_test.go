package trip_test

import (
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/TFMV/pedal/trip"
)

func TestDayNumberMapping(t *testing.T) {
	t.Parallel()

	expected := map[string]int{
		"Sunday":    1,
		"Monday":    2,
		"Tuesday":   3,
		"Wednesday": 4,
		"Thursday":  5,
		"Friday":    6,
		"Saturday":  7,
	}
	seen := map[int]string{}
	for day, want := range expected {
		got, ok := trip.DayNumberOf(day)
		require.True(t, ok, "unknown day %q", day)
		assert.Equal(t, want, got)
		seen[got] = day
	}
	assert.Len(t, seen, 7, "mapping must be a bijection onto 1..7")

	_, ok := trip.DayNumberOf("Blursday")
	assert.False(t, ok)
}

func TestDeriveMatchesDayMapping(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(rt *rapid.T) {
		unix := rapid.Int64Range(0, 4102444800).Draw(rt, "unix")
		minutes := rapid.Float64Range(-2000, 2000).Draw(rt, "minutes")

		tr := trip.Trip{
			StartedAt: time.Unix(unix, 0).UTC(),
		}
		tr.EndedAt = tr.StartedAt.Add(time.Duration(minutes * float64(time.Minute)))
		tr.Derive()

		require.GreaterOrEqual(rt, tr.DayNumber, 1)
		require.LessOrEqual(rt, tr.DayNumber, 7)

		num, ok := trip.DayNumberOf(tr.Day)
		require.True(rt, ok)
		require.Equal(rt, tr.DayNumber, num)

		monthNum, ok := trip.MonthNumberOf(tr.Month)
		require.True(rt, ok)
		require.Equal(rt, int(tr.StartedAt.Month()), monthNum)
	})
}

func TestDeriveKeepsFractionalMinutes(t *testing.T) {
	t.Parallel()

	tr := trip.Trip{
		StartedAt: time.Date(2023, time.July, 4, 10, 0, 0, 0, time.UTC),
		EndedAt:   time.Date(2023, time.July, 4, 10, 1, 30, 0, time.UTC),
	}
	tr.Derive()

	assert.Equal(t, 1.5, tr.RideLength)
	assert.Equal(t, "Tuesday", tr.Day)
	assert.Equal(t, 3, tr.DayNumber)
	assert.Equal(t, "July", tr.Month)
	assert.True(t, tr.Valid())
	assert.False(t, tr.IsWeekend())
}

func TestValidBounds(t *testing.T) {
	t.Parallel()

	base := time.Date(2023, time.July, 4, 10, 0, 0, 0, time.UTC)

	zero := trip.Trip{StartedAt: base, EndedAt: base}
	zero.Derive()
	assert.False(t, zero.Valid())

	negative := trip.Trip{StartedAt: base, EndedAt: base.Add(-time.Minute)}
	negative.Derive()
	assert.False(t, negative.Valid())

	day := trip.Trip{StartedAt: base, EndedAt: base.Add(24 * time.Hour)}
	day.Derive()
	assert.False(t, day.Valid())

	almost := trip.Trip{StartedAt: base, EndedAt: base.Add(24*time.Hour - time.Second)}
	almost.Derive()
	assert.True(t, almost.Valid())
}

func TestNewRecord(t *testing.T) {
	t.Parallel()

	lat := 41.9
	trips := []trip.Trip{
		{
			RideID:           "A1",
			RideableType:     "classic_bike",
			StartedAt:        time.Date(2023, time.January, 8, 9, 0, 0, 0, time.UTC),
			EndedAt:          time.Date(2023, time.January, 8, 9, 20, 0, 0, time.UTC),
			StartStationName: "Clark St & Elm St",
			StartLat:         &lat,
			UserType:         "member",
		},
		{
			RideID:       "A2",
			RideableType: "electric_bike",
			StartedAt:    time.Date(2023, time.January, 9, 9, 0, 0, 0, time.UTC),
			EndedAt:      time.Date(2023, time.January, 9, 9, 5, 0, 0, time.UTC),
			UserType:     "casual",
		},
	}
	for i := range trips {
		trips[i].Derive()
	}

	record := trip.NewRecord(memory.DefaultAllocator, trips)
	defer record.Release()

	assert.Equal(t, int64(2), record.NumRows())
	assert.Equal(t, int64(len(trip.CleanedColumns)), record.NumCols())

	rideIDs := record.Column(trip.ColRideID).(*array.String)
	assert.Equal(t, "A1", rideIDs.Value(0))
	assert.Equal(t, "A2", rideIDs.Value(1))

	userTypes := record.Column(trip.ColUserType).(*array.String)
	assert.Equal(t, "member", userTypes.Value(0))
	assert.Equal(t, "casual", userTypes.Value(1))

	days := record.Column(trip.ColDay).(*array.String)
	assert.Equal(t, "Sunday", days.Value(0))
	assert.Equal(t, "Monday", days.Value(1))

	dayNumbers := record.Column(trip.ColDayNumber).(*array.Int64)
	assert.Equal(t, int64(1), dayNumbers.Value(0))
	assert.Equal(t, int64(2), dayNumbers.Value(1))

	lengths := record.Column(trip.ColRideLength).(*array.Float64)
	assert.Equal(t, 20.0, lengths.Value(0))
	assert.Equal(t, 5.0, lengths.Value(1))

	lats := record.Column(trip.ColStartLat).(*array.Float64)
	assert.False(t, lats.IsNull(0))
	assert.Equal(t, 41.9, lats.Value(0))
	assert.True(t, lats.IsNull(1))

	stations := record.Column(trip.ColStartStationName).(*array.String)
	assert.Equal(t, "Clark St & Elm St", stations.Value(0))
	assert.True(t, stations.IsNull(1))
}
