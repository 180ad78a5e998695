package export

import (
	"fmt"
	"os"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/TFMV/pedal/dataset"
)

// Snapshot persists a Dataset in the Arrow IPC file format so a later
// run can reload the cleaned dataset without touching the raw CSVs.
type Snapshot struct {
	data *dataset.Dataset
}

// NewSnapshot creates a Snapshot for the given dataset.
func NewSnapshot(d *dataset.Dataset) *Snapshot {
	return &Snapshot{data: d}
}

// SaveToDisk writes the dataset to an Arrow IPC file: schema first,
// then every record batch.
func (s *Snapshot) SaveToDisk(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	writer, err := ipc.NewFileWriter(
		file,
		ipc.WithSchema(s.data.Schema()),
		ipc.WithAllocator(memory.NewGoAllocator()),
	)
	if err != nil {
		return fmt.Errorf("failed to create Arrow file writer: %w", err)
	}
	defer func() {
		_ = writer.Close()
	}()

	for _, record := range s.data.Records() {
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record to Arrow file: %w", err)
		}
	}
	return nil
}

// LoadFromDisk reads an Arrow IPC file written by SaveToDisk into a
// fresh Dataset, rebuilding the categorical indexes as batches append.
func LoadFromDisk(path string) (*dataset.Dataset, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %q: %w", path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	reader, err := ipc.NewFileReader(
		file,
		ipc.WithAllocator(memory.NewGoAllocator()),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Arrow file reader: %w", err)
	}
	defer func() {
		_ = reader.Close()
	}()

	d := dataset.New()
	for i := 0; i < reader.NumRecords(); i++ {
		record, err := reader.RecordAt(i)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("failed to read record %d from %q: %w", i, path, err)
		}
		// Retain so the record outlives the reader.
		record.Retain()
		d.Append(record)
	}
	return d, nil
}

// Backup writes the dataset snapshot to path.
func (s *Snapshot) Backup(path string) error {
	return s.SaveToDisk(path)
}

// Restore loads a previously backed-up dataset from path.
func Restore(path string) (*dataset.Dataset, error) {
	return LoadFromDisk(path)
}
