package journal

import (
	"fmt"
	"strings"
	"time"

	"github.com/rustyeddy/levtrader/ledger"
)

// FormatEntryOrg renders a ledger entry as an Org-mode block. Structured
// facts go in a PROPERTIES drawer so they stay searchable; closes also get
// an empty Review section to write into.
func FormatEntryOrg(e ledger.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "** %s %s #%d (%s)\n", e.Action, e.Symbol, e.PositionID, shortID(e.ID))
	b.WriteString(":PROPERTIES:\n")
	fmt.Fprintf(&b, ":ID: %s\n", e.ID)
	fmt.Fprintf(&b, ":OWNER: %s\n", e.Owner)
	fmt.Fprintf(&b, ":POSITION: %d\n", e.PositionID)
	fmt.Fprintf(&b, ":SYMBOL: %s\n", e.Symbol)
	fmt.Fprintf(&b, ":ACTION: %s\n", e.Action)
	fmt.Fprintf(&b, ":PRICE: %s\n", e.Price)
	fmt.Fprintf(&b, ":SIZE: %s\n", e.Size)
	if e.PnL.Valid {
		fmt.Fprintf(&b, ":PNL: %s\n", e.PnL.Decimal.StringFixed(2))
	}
	fmt.Fprintf(&b, ":TIME: %s\n", e.Time.UTC().Format(time.RFC3339))
	b.WriteString(":END:\n")

	if strings.HasPrefix(e.Action, "CLOSE") {
		b.WriteString("\n*** Review\n- \n")
	}
	return b.String()
}

// FormatEntriesOrg renders entries separated by blank lines.
func FormatEntriesOrg(entries []ledger.Entry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(FormatEntryOrg(e))
	}
	return b.String()
}

func shortID(full string) string {
	if len(full) <= 8 {
		return full
	}
	return full[len(full)-8:]
}
