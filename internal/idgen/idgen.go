// Package idgen generates k-sortable prefixed identifiers.
//
// An ID is <prefix>_<24-char base36 tail>. The first 9 characters of the
// tail encode the creation time in milliseconds, the remaining 15 are
// random, so IDs sort roughly chronologically within a single writer while
// staying collision-safe across writers.
package idgen

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"
)

// base36Alphabet is the character set for base36 encoding (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

const (
	timeChars   = 9
	randomChars = 15
	tailChars   = timeChars + randomChars
)

// Entity prefixes. One constructor per prefix below.
const (
	PrefixCollection        = "col"
	PrefixDocument          = "doc"
	PrefixSchema            = "sch"
	PrefixSchemaElement     = "sel"
	PrefixIndexEntry        = "val"
	PrefixLabel             = "lbl"
	PrefixTag               = "tag"
	PrefixIndexTableMapping = "itm"
	PrefixFieldConstraint   = "fco"
	PrefixIndexedField      = "ixf"
	PrefixObjectLock        = "lock"
)

// EncodeBase36 converts a byte slice to a base36 string of the given length,
// zero-padded on the left and truncated to the least significant digits.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)

	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}

	str := string(chars)
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// encodeTime encodes milliseconds since the Unix epoch as a fixed-width
// base36 string. Nine base36 digits hold millisecond timestamps until well
// past the year 5000.
func encodeTime(t time.Time) string {
	ms := big.NewInt(t.UnixMilli())
	return EncodeBase36(ms.Bytes(), timeChars)
}

// randomTail returns randomChars base36 characters of crypto/rand entropy.
func randomTail() string {
	buf := make([]byte, 10) // 80 bits, comfortably > 15 base36 chars worth
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the platform RNG is broken; nothing
		// sensible to fall back to.
		panic("idgen: crypto/rand unavailable: " + err.Error())
	}
	return EncodeBase36(buf, randomChars)
}

// New returns a fresh k-sortable ID with the given prefix.
func New(prefix string) string {
	return NewAt(prefix, time.Now().UTC())
}

// NewAt returns a k-sortable ID with the given prefix and timestamp.
// Exposed for tests that need deterministic time ordering.
func NewAt(prefix string, t time.Time) string {
	return prefix + "_" + encodeTime(t) + randomTail()
}

// NewCollectionID returns a new collection ID (col_...).
func NewCollectionID() string { return New(PrefixCollection) }

// NewDocumentID returns a new document ID (doc_...).
func NewDocumentID() string { return New(PrefixDocument) }

// NewSchemaID returns a new schema ID (sch_...).
func NewSchemaID() string { return New(PrefixSchema) }

// NewSchemaElementID returns a new schema element ID (sel_...).
func NewSchemaElementID() string { return New(PrefixSchemaElement) }

// NewIndexEntryID returns a new index entry ID (val_...).
func NewIndexEntryID() string { return New(PrefixIndexEntry) }

// NewLabelID returns a new label ID (lbl_...).
func NewLabelID() string { return New(PrefixLabel) }

// NewTagID returns a new tag ID (tag_...).
func NewTagID() string { return New(PrefixTag) }

// NewIndexTableMappingID returns a new index table mapping ID (itm_...).
func NewIndexTableMappingID() string { return New(PrefixIndexTableMapping) }

// NewFieldConstraintID returns a new field constraint ID (fco_...).
func NewFieldConstraintID() string { return New(PrefixFieldConstraint) }

// NewIndexedFieldID returns a new indexed field ID (ixf_...).
func NewIndexedFieldID() string { return New(PrefixIndexedField) }

// NewObjectLockID returns a new object lock ID (lock_...).
func NewObjectLockID() string { return New(PrefixObjectLock) }
