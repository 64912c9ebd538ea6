package feed

import (
	"sync"
	"time"
)

// Sink receives every published batch, e.g. to stream it to map clients.
// rollover is the dataset size bound the batch was published with.
type Sink interface {
	Stream(cols Columns, rollover int)
}

// RollingDataset is an append-with-eviction buffer of records. It has one
// writer (the feed) and any number of readers; readers get copies.
type RollingDataset struct {
	mu        sync.RWMutex
	rows      []Record
	updatedAt time.Time
}

// NewRollingDataset returns an empty dataset.
func NewRollingDataset() *RollingDataset {
	return &RollingDataset{}
}

// Stream appends batch and then evicts the oldest rows until at most rollover
// remain. A negative rollover disables eviction.
func (d *RollingDataset) Stream(batch []Record, rollover int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	rows := append(d.rows, batch...)
	if rollover >= 0 && len(rows) > rollover {
		rows = append([]Record(nil), rows[len(rows)-rollover:]...)
	}
	d.rows = rows
	d.updatedAt = time.Now().UTC()
}

// Snapshot returns the current rows, oldest first.
func (d *RollingDataset) Snapshot() []Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Record(nil), d.rows...)
}

// Columns returns the current rows in column form.
func (d *RollingDataset) Columns() Columns {
	return ToColumns(d.Snapshot())
}

// Len returns the number of rows.
func (d *RollingDataset) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.rows)
}

// UpdatedAt returns the time of the last Stream call, zero if never.
func (d *RollingDataset) UpdatedAt() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updatedAt
}
