package charge

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// TxIDLength is the length of locally generated charge identifiers.
const TxIDLength = 26

var txidPattern = regexp.MustCompile(`^[a-zA-Z0-9]{26,35}$`)

// NewTxID returns a fresh charge identifier: a random UUID rendered as hex
// and cut to 26 characters (about 100 bits of entropy).
func NewTxID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:TxIDLength]
}

// ValidTxID reports whether s has the shape the Pix API accepts for a txid.
func ValidTxID(s string) bool {
	return txidPattern.MatchString(s)
}
