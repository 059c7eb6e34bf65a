package ledger

import (
	"fmt"
	"strconv"
	"strings"
)

// ReceiptSequence renders receipt numbers as Prefix + the number zero-padded to Width digits, e.g. F0000042.
type ReceiptSequence struct {
	Prefix string
	Width  int
}

var DefaultReceiptSequence = ReceiptSequence{Prefix: "F", Width: 7}

func (seq ReceiptSequence) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", seq.Prefix, seq.Width, n)
}

// Parse extracts the number of a receipt of this sequence.
func (seq ReceiptSequence) Parse(receipt string) (int64, bool) {
	if !strings.HasPrefix(receipt, seq.Prefix) {
		return 0, false
	}
	n, err := strconv.ParseInt(receipt[len(seq.Prefix):], 10, 64)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// Next returns the receipt following last, the greatest receipt issued so far ("" when none).
// Callers must hold the receipt lock until the new receipt is stored.
func (seq ReceiptSequence) Next(last string) string {
	n, _ := seq.Parse(last)
	return seq.Format(n + 1)
}

// GreatestReceipt returns the receipt with the greatest number among receipts of this sequence.
// Numbers that outgrew the width sort after shorter ones.
func (seq ReceiptSequence) GreatestReceipt(receipts []string) string {
	var (
		last string
		max  int64 = -1
	)
	for _, r := range receipts {
		if n, ok := seq.Parse(r); ok && n > max {
			max = n
			last = r
		}
	}
	return last
}
