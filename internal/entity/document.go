package entity

import (
	"crypto/sha256"
	"encoding/hex"
)

// RawDocument is an uploaded document as handed over by the inbound boundary.
type RawDocument struct {
	Content   []byte
	MediaType string
	Filename  string
}

// ContentHashHex returns the hex sha256 of the document bytes.
func (d RawDocument) ContentHashHex() string {
	sum := sha256.Sum256(d.Content)
	return hex.EncodeToString(sum[:])
}
