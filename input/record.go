package input

import (
	"encoding/json"
	"time"
)

// Record is one result object returned by the API.
// Raw is handed to the sink unmodified; ID is only used for cursor comparison.
type Record struct {
	ID  int64
	Raw json.RawMessage
}

// Page is the batch of records returned by a single request, in the order received
type Page struct {
	Records []Record
}

// Exhausted reports whether the page ends the drain loop
func (p Page) Exhausted() bool {
	return len(p.Records) == 0
}

// MaxID returns the highest id in the page, or cursor when no record exceeds it.
// The result never goes below cursor.
func (p Page) MaxID(cursor int64) int64 {
	highest := cursor
	for _, r := range p.Records {
		if r.ID > highest {
			highest = r.ID
		}
	}
	return highest
}

// Envelope is what an input hands to the event sink for each record
type Envelope struct {
	Input    string          `json:"input"`
	Category string          `json:"category"`
	Time     time.Time       `json:"time"`
	Data     json.RawMessage `json:"data"`
}
