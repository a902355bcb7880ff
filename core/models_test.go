package core

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func TestIDFromContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "short content", content: "test content"},
		{name: "empty string", content: ""},
		{name: "long content", content: "This is a much longer piece of content that should still hash consistently"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id1 := IDFromContent(tt.content)
			id2 := IDFromContent(tt.content)
			if id1 != id2 {
				t.Errorf("IDFromContent() produced different IDs for same content: %s vs %s", id1, id2)
			}
			if len(id1) != 16 {
				t.Errorf("IDFromContent() length = %d, want 16", len(id1))
			}
		})
	}
}

func TestIDFromContent_Different(t *testing.T) {
	if IDFromContent("content1") == IDFromContent("content2") {
		t.Errorf("IDFromContent() produced same ID for different content")
	}
}

func TestDocument_HasTags(t *testing.T) {
	doc := &Document{Tags: []string{"work", "travel", "ideas"}}

	tests := []struct {
		name string
		want []string
		ok   bool
	}{
		{name: "no tags requested", want: nil, ok: true},
		{name: "single present", want: []string{"work"}, ok: true},
		{name: "all present", want: []string{"ideas", "work"}, ok: true},
		{name: "one missing", want: []string{"work", "family"}, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doc.HasTags(tt.want); got != tt.ok {
				t.Errorf("HasTags(%v) = %v, want %v", tt.want, got, tt.ok)
			}
		})
	}
}

func TestDateRange_Contains(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := DateRange{Start: base, End: base.Add(24 * time.Hour)}

	if !r.Contains(base) {
		t.Error("start bound should be inclusive")
	}
	if !r.Contains(base.Add(24 * time.Hour)) {
		t.Error("end bound should be inclusive")
	}
	if r.Contains(base.Add(-time.Second)) {
		t.Error("before start should be excluded")
	}
	if r.Contains(base.Add(25 * time.Hour)) {
		t.Error("after end should be excluded")
	}
	if !(DateRange{}).Contains(base) {
		t.Error("open range should contain everything")
	}
}

func TestValidateVector(t *testing.T) {
	tests := []struct {
		name string
		v    []float32
		dim  int
		want error
	}{
		{name: "valid", v: []float32{1, 0, 0}, dim: 3},
		{name: "wrong dimension", v: []float32{1, 0}, dim: 3, want: ErrInvalidDimension},
		{name: "zero vector", v: []float32{0, 0, 0}, dim: 3, want: ErrZeroVector},
		{name: "nan component", v: []float32{float32(math.NaN()), 1, 0}, dim: 3, want: ErrInvalidDimension},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVector(tt.v, tt.dim)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Fatalf("ValidateVector() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestValidateHalfLife(t *testing.T) {
	for _, days := range []float64{0, -1, math.NaN(), math.Inf(1)} {
		if err := ValidateHalfLife(days); !errors.Is(err, ErrInvalidHalfLife) {
			t.Errorf("ValidateHalfLife(%v) = %v, want ErrInvalidHalfLife", days, err)
		}
	}
	if err := ValidateHalfLife(0.5); err != nil {
		t.Errorf("ValidateHalfLife(0.5) = %v", err)
	}
}

func TestValidateDocument(t *testing.T) {
	now := time.Now()
	if err := ValidateDocument(&Document{ID: "a", OwnerID: "u", CreatedAt: now}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := ValidateDocument(&Document{OwnerID: "u", CreatedAt: now}); !errors.Is(err, ErrEmptyDocumentID) {
		t.Errorf("expected ErrEmptyDocumentID, got %v", err)
	}
	if err := ValidateDocument(&Document{ID: "a", CreatedAt: now}); !errors.Is(err, ErrOwnerRequired) {
		t.Errorf("expected ErrOwnerRequired, got %v", err)
	}
	if err := ValidateDocument(nil); !errors.Is(err, ErrInvalidDocument) {
		t.Errorf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestValidateDateRange(t *testing.T) {
	now := time.Now()
	if err := ValidateDateRange(DateRange{Start: now, End: now.Add(-time.Hour)}); !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}
	if err := ValidateDateRange(DateRange{Start: now}); err != nil {
		t.Errorf("open-ended range should be valid: %v", err)
	}
}

func TestDateRange_UnmarshalJSON(t *testing.T) {
	var r DateRange
	if err := json.Unmarshal([]byte(`{"start":"2025-01-02","end":"2025-01-03"}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC); !r.Start.Equal(want) {
		t.Errorf("start = %v, want %v", r.Start, want)
	}
	if !r.Contains(time.Date(2025, 1, 3, 23, 0, 0, 0, time.UTC)) {
		t.Error("plain end date should cover the whole day")
	}
	if r.Contains(time.Date(2025, 1, 4, 0, 0, 0, 0, time.UTC)) {
		t.Error("range should end with the end date")
	}

	if err := json.Unmarshal([]byte(`{"start":"2025-01-02T10:00:00Z"}`), &r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !r.End.IsZero() {
		t.Error("missing end should be open")
	}

	err := json.Unmarshal([]byte(`{"start":"yesterday"}`), &r)
	if !errors.Is(err, ErrInvalidDateRange) {
		t.Errorf("expected ErrInvalidDateRange, got %v", err)
	}
}
