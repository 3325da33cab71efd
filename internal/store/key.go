package store

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Key addresses one cached transformation. Two requests share a key only
// when stage, normalized input text and target language all match, so a
// translation into one language can never be served for another.
type Key struct {
	Stage string
	Hash  string
	Lang  string
}

// NewKey hashes text after trimming and NFC normalization.
func NewKey(stage, text, lang string) Key {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return Key{
		Stage: stage,
		Hash:  hex.EncodeToString(sum[:]),
		Lang:  lang,
	}
}

func (k Key) String() string {
	return k.Stage + "/" + k.Lang + "/" + k.Hash
}

// normalizeText trims whitespace and applies Unicode NFC normalization
// for consistent cache key comparison.
func normalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}
