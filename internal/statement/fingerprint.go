package statement

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strconv"
	"time"
)

// Fingerprint is the idempotency key of a banking transaction. Fields are
// length-prefixed so free-text descriptions cannot collide across field
// boundaries. occurrence distinguishes identical rows within one statement
// (two same-day coffees) while keeping a re-import of the same file stable.
func Fingerprint(account string, t Transaction, occurrence int) string {
	h := sha256.New()
	writeField := func(s string) {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(s))) //nolint:gosec // statement fields are short
		h.Write(lenBuf[:])
		h.Write([]byte(s))
	}
	writeField(account)
	writeField(t.Date.Format(time.DateOnly))
	writeField(t.Description)
	writeField(t.Debit.StringFixed(2))
	writeField(t.Credit.StringFixed(2))
	writeField(strconv.Itoa(occurrence))
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprints returns one fingerprint per transaction, numbering repeats of
// the same (date, description, debit, credit) in statement order.
func Fingerprints(account string, txns []Transaction) []string {
	seen := make(map[string]int, len(txns))
	out := make([]string, len(txns))
	for i, t := range txns {
		key := t.Date.Format(time.DateOnly) + "\x00" + t.Description + "\x00" + t.Debit.StringFixed(2) + "\x00" + t.Credit.StringFixed(2)
		n := seen[key]
		seen[key] = n + 1
		out[i] = Fingerprint(account, t, n)
	}
	return out
}
