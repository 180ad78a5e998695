// Package agg implements the grouped reductions over the cleaned trip
// dataset: counts and mean ride lengths by any combination of user type,
// weekday, and month, plus the casual-rider share computations behind
// the member-vs-casual comparison. Every aggregation is deterministic
// and independent of row order.
package agg

import (
	"fmt"
	"sort"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/apache/arrow-go/v18/arrow/array"

	"github.com/TFMV/pedal/dataset"
	"github.com/TFMV/pedal/trip"
)

// UserCasual and UserMember are the two rider classifications.
const (
	UserCasual = "casual"
	UserMember = "member"
)

// GroupBy selects which categorical columns form the grouping key.
type GroupBy struct {
	UserType bool
	Day      bool
	Month    bool
}

func (g GroupBy) cacheKey(op string) string {
	return fmt.Sprintf("%s|u=%t,d=%t,m=%t", op, g.UserType, g.Day, g.Month)
}

// Key is one grouping-key tuple. Fields for columns not part of the
// grouping stay empty.
type Key struct {
	UserType string
	Day      string
	Month    string
}

// CountBy returns the row count per key tuple. Grouping over no columns
// returns the total row count under the zero Key. Counts are computed
// from the categorical bitmap indexes: one cardinality or intersection
// per occupied key combination, never a full scan.
func CountBy(d *dataset.Dataset, by GroupBy) map[Key]int64 {
	cacheKey := by.cacheKey("count")
	if cached, ok := d.CacheGet(cacheKey); ok {
		return cached.(map[Key]int64)
	}
	start := time.Now()

	type combo struct {
		key Key
		bm  *roaring.Bitmap // nil means all rows
	}
	combos := []combo{{}}
	for _, column := range enabledColumns(by) {
		var next []combo
		for _, c := range combos {
			for _, value := range d.DistinctValues(column) {
				bm := d.Bitmap(column, value)
				if bm == nil {
					continue
				}
				if c.bm != nil {
					bm = roaring.And(c.bm, bm)
					if bm.IsEmpty() {
						continue
					}
				}
				next = append(next, combo{key: withValue(c.key, column, value), bm: bm})
			}
		}
		combos = next
	}

	counts := make(map[Key]int64, len(combos))
	for _, c := range combos {
		if c.bm == nil {
			counts[c.key] = d.NumRows()
			continue
		}
		counts[c.key] = int64(c.bm.GetCardinality())
	}
	dataset.ObserveQuery(start)
	d.CacheAdd(cacheKey, counts)
	return counts
}

// MeanDurationBy returns the mean ride length in minutes per key tuple,
// ignoring null durations.
func MeanDurationBy(d *dataset.Dataset, by GroupBy) map[Key]float64 {
	cacheKey := by.cacheKey("mean_duration")
	if cached, ok := d.CacheGet(cacheKey); ok {
		return cached.(map[Key]float64)
	}
	start := time.Now()

	sums := make(map[Key]float64)
	counts := make(map[Key]int64)
	for _, record := range d.Records() {
		userTypes := record.Column(trip.ColUserType).(*array.String)
		days := record.Column(trip.ColDay).(*array.String)
		months := record.Column(trip.ColMonth).(*array.String)
		lengths := record.Column(trip.ColRideLength).(*array.Float64)

		for i := 0; i < int(record.NumRows()); i++ {
			if lengths.IsNull(i) {
				continue
			}
			var key Key
			if by.UserType {
				key.UserType = userTypes.Value(i)
			}
			if by.Day {
				key.Day = days.Value(i)
			}
			if by.Month {
				key.Month = months.Value(i)
			}
			sums[key] += lengths.Value(i)
			counts[key]++
		}
	}

	means := make(map[Key]float64, len(sums))
	for key, sum := range sums {
		means[key] = sum / float64(counts[key])
	}
	dataset.ObserveQuery(start)
	d.CacheAdd(cacheKey, means)
	return means
}

// WeekdayShare returns the casual percentage of Monday-Friday rides,
// in [0,100].
func WeekdayShare(d *dataset.Dataset) float64 {
	return casualShare(d, false)
}

// WeekendShare returns the casual percentage of Saturday-Sunday rides,
// in [0,100].
func WeekendShare(d *dataset.Dataset) float64 {
	return casualShare(d, true)
}

func casualShare(d *dataset.Dataset, weekend bool) float64 {
	counts := CountBy(d, GroupBy{UserType: true, Day: true})

	var casual, member int64
	for key, n := range counts {
		dayNum, ok := trip.DayNumberOf(key.Day)
		if !ok {
			continue
		}
		isWeekend := dayNum == 1 || dayNum == 7
		if isWeekend != weekend {
			continue
		}
		switch key.UserType {
		case UserCasual:
			casual += n
		case UserMember:
			member += n
		}
	}
	total := casual + member
	if total == 0 {
		return 0
	}
	return float64(casual) / float64(total) * 100
}

// MonthCount is one row of the long-form chart table.
type MonthCount struct {
	Month    string
	UserType string
	Rides    int64
}

// MonthlyRides returns the (month, user_type, ride_count) table in
// calendar-month order, the shape the external charting tool consumes.
func MonthlyRides(d *dataset.Dataset) []MonthCount {
	counts := CountBy(d, GroupBy{UserType: true, Month: true})

	rows := make([]MonthCount, 0, len(counts))
	for key, n := range counts {
		rows = append(rows, MonthCount{Month: key.Month, UserType: key.UserType, Rides: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		mi, _ := trip.MonthNumberOf(rows[i].Month)
		mj, _ := trip.MonthNumberOf(rows[j].Month)
		if mi != mj {
			return mi < mj
		}
		return rows[i].UserType < rows[j].UserType
	})
	return rows
}

func enabledColumns(by GroupBy) []string {
	var columns []string
	if by.UserType {
		columns = append(columns, "user_type")
	}
	if by.Day {
		columns = append(columns, "day")
	}
	if by.Month {
		columns = append(columns, "month")
	}
	return columns
}

func withValue(key Key, column, value string) Key {
	switch column {
	case "user_type":
		key.UserType = value
	case "day":
		key.Day = value
	case "month":
		key.Month = value
	}
	return key
}
