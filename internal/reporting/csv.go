package reporting

import (
	"io"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/samber/lo"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// EventRow is the CSV form of a journal event. Amounts are whole units.
type EventRow struct {
	ID           string         `csv:"id"`
	Height       uint64         `csv:"height"`
	Sequence     int            `csv:"sequence"`
	Contract     string         `csv:"contract"`
	Kind         string         `csv:"kind"`
	Actor        domain.Address `csv:"actor"`
	Counterparty domain.Address `csv:"counterparty"`
	Amount       string         `csv:"amount"`
	Value        string         `csv:"value"`
	Timestamp    time.Time      `csv:"timestamp"`
}

// ToEventRow converts an event for export.
func ToEventRow(e domain.Event, _ int) EventRow {
	row := EventRow{
		ID:           e.ID.String(),
		Height:       e.Height,
		Sequence:     e.Sequence,
		Contract:     e.Contract,
		Kind:         e.Kind.String(),
		Actor:        e.Actor,
		Counterparty: e.Counterparty,
		Amount:       fixedpoint.Format(e.Amount),
		Timestamp:    e.Timestamp.UTC(),
	}
	if e.Value != nil {
		row.Value = fixedpoint.Format(e.Value)
	}
	return row
}

// WriteEventsCSV writes events as CSV.
func WriteEventsCSV(w io.Writer, events []domain.Event) error {
	return gocsv.Marshal(lo.Map(events, ToEventRow), w)
}

// WritePositionsCSV writes report positions as CSV.
func WritePositionsCSV(w io.Writer, positions []PositionRow) error {
	return gocsv.Marshal(positions, w)
}

// ReadEventRows parses CSV produced by WriteEventsCSV.
func ReadEventRows(data []byte) ([]EventRow, error) {
	rows := make([]EventRow, 0)
	err := gocsv.UnmarshalBytes(data, &rows)
	return rows, err
}
