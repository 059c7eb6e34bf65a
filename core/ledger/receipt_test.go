package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceiptSequence(t *testing.T) {
	seq := DefaultReceiptSequence

	assert.Equal(t, "F0000001", seq.Next(""))
	assert.Equal(t, "F0000043", seq.Next("F0000042"))
	assert.Equal(t, "F10000000", seq.Next("F9999999"))

	n, ok := seq.Parse("F0000042")
	assert.True(t, ok)
	assert.Equal(t, int64(42), n)
	_, ok = seq.Parse("R0000042")
	assert.False(t, ok)
	_, ok = seq.Parse("Fabc")
	assert.False(t, ok)

	assert.Equal(t, "F10000000", seq.GreatestReceipt([]string{"F9999999", "F10000000", "X99999999", "F0000002"}))
	assert.Equal(t, "", seq.GreatestReceipt(nil))

	custom := ReceiptSequence{Prefix: "RCPT-", Width: 4}
	assert.Equal(t, "RCPT-0008", custom.Next("RCPT-0007"))
}
