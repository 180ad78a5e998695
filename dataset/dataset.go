// Package dataset holds the cleaned trip dataset in memory as Apache
// Arrow record batches, with bitmap indexes over the categorical columns
// and a small cache for aggregation results. The dataset is built once
// and never mutated afterwards.
package dataset

import (
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/golang/groupcache/lru"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/TFMV/pedal/trip"
)

// DefaultBatchSize is the number of rows per Arrow record batch when
// building from a trip slice.
const DefaultBatchSize = 65536

var (
	buildLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "pedal_dataset_build_latency_seconds",
		Help: "Dataset build latency distribution",
	})
	queryLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "pedal_dataset_query_latency_seconds",
		Help: "Dataset aggregation latency distribution",
	})
)

func init() {
	prometheus.MustRegister(buildLatency, queryLatency)
}

// IndexedColumns are the categorical columns carrying a bitmap index.
var IndexedColumns = map[string]int{
	"user_type": trip.ColUserType,
	"day":       trip.ColDay,
	"month":     trip.ColMonth,
}

// valueIndex maps each distinct column value to the bitmap of global row
// positions holding it.
type valueIndex struct {
	bitmaps map[string]*roaring.Bitmap
}

func newValueIndex() *valueIndex {
	return &valueIndex{bitmaps: make(map[string]*roaring.Bitmap)}
}

func (idx *valueIndex) add(value string, position uint32) {
	bitmap, ok := idx.bitmaps[value]
	if !ok {
		bitmap = roaring.New()
		idx.bitmaps[value] = bitmap
	}
	bitmap.Add(position)
}

// Dataset is the immutable in-memory analysis set.
type Dataset struct {
	mu      sync.RWMutex
	records []arrow.Record
	rows    int64
	indexes map[string]*valueIndex
	cache   *lru.Cache
}

// New creates an empty Dataset.
func New() *Dataset {
	return &Dataset{
		indexes: make(map[string]*valueIndex),
		cache:   lru.New(128),
	}
}

// FromTrips builds a Dataset from cleaned trips, chunked into record
// batches of batchSize rows (DefaultBatchSize when batchSize <= 0).
func FromTrips(trips []trip.Trip, batchSize int) *Dataset {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	d := New()
	for lo := 0; lo < len(trips); lo += batchSize {
		hi := lo + batchSize
		if hi > len(trips) {
			hi = len(trips)
		}
		d.Append(trip.NewRecord(trip.Pool, trips[lo:hi]))
	}
	buildLatency.Observe(time.Since(start).Seconds())
	return d
}

// Append takes ownership of a record batch in the cleaned schema and
// indexes its categorical columns.
func (d *Dataset) Append(record arrow.Record) {
	d.mu.Lock()
	defer d.mu.Unlock()

	base := uint32(d.rows)
	for name, col := range IndexedColumns {
		values, ok := record.Column(col).(*array.String)
		if !ok {
			continue
		}
		idx, exists := d.indexes[name]
		if !exists {
			idx = newValueIndex()
			d.indexes[name] = idx
		}
		for i := 0; i < values.Len(); i++ {
			idx.add(values.Value(i), base+uint32(i))
		}
	}

	d.records = append(d.records, record)
	d.rows += record.NumRows()
}

// NumRows returns the total row count.
func (d *Dataset) NumRows() int64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.rows
}

// Records returns the underlying record batches. Callers must not
// release or mutate them.
func (d *Dataset) Records() []arrow.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.records
}

// Schema returns the dataset schema.
func (d *Dataset) Schema() *arrow.Schema {
	return trip.Schema
}

// DistinctValues returns the distinct values seen in an indexed column.
func (d *Dataset) DistinctValues(column string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, ok := d.indexes[column]
	if !ok {
		return nil
	}
	values := make([]string, 0, len(idx.bitmaps))
	for v := range idx.bitmaps {
		values = append(values, v)
	}
	return values
}

// Bitmap returns the row-position bitmap for one value of an indexed
// column, or nil when the value never occurs. The returned bitmap is
// shared and must not be mutated; use roaring's And/Or into fresh
// bitmaps for set algebra.
func (d *Dataset) Bitmap(column, value string) *roaring.Bitmap {
	d.mu.RLock()
	defer d.mu.RUnlock()

	idx, ok := d.indexes[column]
	if !ok {
		return nil
	}
	return idx.bitmaps[value]
}

// CacheGet looks up a previously computed aggregation result.
func (d *Dataset) CacheGet(key string) (interface{}, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cache.Get(key)
}

// CacheAdd stores an aggregation result. Entries never invalidate since
// the dataset is immutable once built.
func (d *Dataset) CacheAdd(key string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cache.Add(key, value)
}

// ObserveQuery records one aggregation latency sample.
func ObserveQuery(start time.Time) {
	queryLatency.Observe(time.Since(start).Seconds())
}

// Close releases every record batch.
func (d *Dataset) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, record := range d.records {
		record.Release()
	}
	d.records = nil
	d.rows = 0
	d.indexes = make(map[string]*valueIndex)
}
