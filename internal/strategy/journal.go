package strategy

import (
	"fmt"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// CycleRecord is one completed buy or sell cycle
type CycleRecord struct {
	Seq       int    `csv:"seq"`
	Direction string `csv:"direction"`
	OrderID   int64  `csv:"order_id"`
	Price     int64  `csv:"price"`
	Requested int64  `csv:"requested"`
	Filled    int64  `csv:"filled"`
	Outcome   string `csv:"outcome"`
	Polls     int    `csv:"polls"`
	ElapsedMS int64  `csv:"elapsed_ms"`
	NetAfter  int64  `csv:"net_after"`
	At        string `csv:"at"`
}

// Journal keeps every cycle of a run in memory
type Journal struct {
	mu      sync.Mutex
	records []CycleRecord
}

func NewJournal() *Journal {
	return &Journal{}
}

// Add appends a record
func (j *Journal) Add(r CycleRecord) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, r)
}

// Records returns a copy of the journal
func (j *Journal) Records() []CycleRecord {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]CycleRecord, len(j.records))
	copy(out, j.records)
	return out
}

// WriteCSV exports the journal to path, replacing any existing file
func (j *Journal) WriteCSV(path string) error {
	records := j.Records()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create journal file: %w", err)
	}
	defer f.Close()

	if err := gocsv.MarshalFile(&records, f); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	return nil
}
