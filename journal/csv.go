package journal

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"

	"github.com/rustyeddy/levtrader/ledger"
)

var entryHeader = []string{"entry_id", "time", "owner", "position_id", "symbol", "action", "price", "size", "pnl"}

// WriteEntriesCSV writes entries with a header row. Opens leave pnl empty.
func WriteEntriesCSV(w io.Writer, entries []ledger.Entry) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(entryHeader); err != nil {
		return err
	}
	for _, e := range entries {
		pnl := ""
		if e.PnL.Valid {
			pnl = e.PnL.Decimal.String()
		}
		if err := cw.Write([]string{
			e.ID,
			e.Time.UTC().Format(time.RFC3339Nano),
			e.Owner,
			strconv.FormatInt(e.PositionID, 10),
			e.Symbol,
			e.Action,
			e.Price.String(),
			e.Size.String(),
			pnl,
		}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
