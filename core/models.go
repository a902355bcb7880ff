package core

//go:generate go run ../cmd/musgen

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/go-crypt/x/blake2b"
)

// DefaultHalfLifeDays is applied when an owner has no configured half-life.
const DefaultHalfLifeDays = 30.0

// DocumentID identifies a document and its embedding record.
type DocumentID string

// IDFromContent generates a deterministic ID from text content using BLAKE2b hashing.
// Identical content produces identical IDs.
func IDFromContent(text string) DocumentID {
	h, _ := blake2b.New(8, nil) // 8 bytes = 64 bits
	h.Write([]byte(text))
	sum := h.Sum(nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], binary.LittleEndian.Uint64(sum))
	return DocumentID(hex.EncodeToString(buf[:]))
}

// Document is the metadata the engine needs about a document.
// The document lifecycle belongs to the caller; the engine only reads it.
type Document struct {
	ID        DocumentID
	OwnerID   string
	Title     string
	Content   string
	Tags      []string
	CreatedAt time.Time
	Deleted   bool
}

// HasTags reports whether every tag in want is present on the document.
func (d *Document) HasTags(want []string) bool {
	for _, tag := range want {
		if !slices.Contains(d.Tags, tag) {
			return false
		}
	}
	return true
}

// EmbeddingRecord holds the single embedding vector of a document.
// An inactive record always carries the zero vector.
type EmbeddingRecord struct {
	DocumentID DocumentID
	Vector     []float32
	Active     bool
	UpdatedAt  time.Time
}

// OwnerSettings holds per-owner ranking and privacy preferences.
type OwnerSettings struct {
	OwnerID      string
	HalfLifeDays float64 // Days until the recency multiplier reaches 0.5
	HardDelete   bool    // Forget requests erase instead of deactivating
	UpdatedAt    time.Time
}

// DefaultOwnerSettings returns the settings applied when an owner has none stored.
func DefaultOwnerSettings(ownerID string) *OwnerSettings {
	return &OwnerSettings{
		OwnerID:      ownerID,
		HalfLifeDays: DefaultHalfLifeDays,
	}
}

// RankedResult is one ranked hit, with its score decomposed for explainability.
type RankedResult struct {
	DocumentID DocumentID `json:"document_id"`
	Score      float64    `json:"score"`
	Similarity float64    `json:"similarity"`
	Decay      float64    `json:"decay"`
}

// DateRange bounds a document's creation time. Zero bounds are open.
type DateRange struct {
	Start time.Time `json:"start,omitzero"`
	End   time.Time `json:"end,omitzero"`
}

// Contains reports whether ts falls within the range, inclusive on both ends.
func (r DateRange) Contains(ts time.Time) bool {
	if !r.Start.IsZero() && ts.Before(r.Start) {
		return false
	}
	if !r.End.IsZero() && ts.After(r.End) {
		return false
	}
	return true
}

// UnmarshalJSON accepts RFC 3339 timestamps or plain dates for either bound.
// A plain end date covers that whole day.
func (r *DateRange) UnmarshalJSON(data []byte) error {
	var raw struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	start, err := parseBound(raw.Start, false)
	if err != nil {
		return fmt.Errorf("%w: start: %w", ErrInvalidDateRange, err)
	}
	end, err := parseBound(raw.End, true)
	if err != nil {
		return fmt.Errorf("%w: end: %w", ErrInvalidDateRange, err)
	}
	r.Start, r.End = start, end
	return nil
}

func parseBound(s string, endOfDay bool) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if day, err := time.Parse(time.DateOnly, s); err == nil {
		if endOfDay {
			return day.Add(24*time.Hour - time.Nanosecond), nil
		}
		return day, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// IsZeroVector reports whether every component of v is zero.
// The zero vector marks a forgotten record.
func IsZeroVector(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}
