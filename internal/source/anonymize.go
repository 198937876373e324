package source

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/soltixdb/insight/internal/models"
)

// Anonymizer strips identifying fields from records before they leave the service
type Anonymizer interface {
	AnonymizeRecords(records []models.Record) []models.Record
}

// Pseudonym returns the stable anonymous id for a player: player_ followed by
// the first 12 hex digits of sha256(salt + ":" + id). Empty ids stay empty.
func Pseudonym(salt, id string) string {
	if id == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(salt + ":" + id))
	return "player_" + hex.EncodeToString(sum[:])[:12]
}

// HashAnonymizer replaces playerId with its pseudonym
type HashAnonymizer struct {
	Salt string
}

// NewHashAnonymizer creates an anonymizer keyed by salt
func NewHashAnonymizer(salt string) *HashAnonymizer {
	return &HashAnonymizer{Salt: salt}
}

// AnonymizeRecords returns copies; the input slice is not modified
func (a *HashAnonymizer) AnonymizeRecords(records []models.Record) []models.Record {
	out := make([]models.Record, len(records))
	for i, r := range records {
		c := r.Clone()
		if id := c.String(models.FieldPlayerID); id != "" {
			c[models.FieldPlayerID] = Pseudonym(a.Salt, id)
		}
		out[i] = c
	}
	return out
}

var _ Anonymizer = (*HashAnonymizer)(nil)
