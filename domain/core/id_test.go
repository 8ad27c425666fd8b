package core

import (
	"errors"
	"testing"
)

// TestNewIDUniqueness tests that NewID generates unique identifiers
func TestNewIDUniqueness(t *testing.T) {
	const numIDs = 10000

	ids := make(map[ID]bool, numIDs)
	for i := 0; i < numIDs; i++ {
		id := NewID()
		if id.IsEmpty() {
			t.Errorf("Generated empty ID at iteration %d", i)
		}
		if ids[id] {
			t.Errorf("Generated duplicate ID: %s", id)
		}
		ids[id] = true
	}
}

func TestParseRunID(t *testing.T) {
	id := NewRunID()
	parsed, err := ParseRunID(id.String())
	if err != nil {
		t.Fatalf("ParseRunID(%q) failed: %v", id, err)
	}
	if parsed != id {
		t.Errorf("Expected %s, got %s", id, parsed)
	}

	if _, err := ParseRunID("  "); err == nil {
		t.Error("Expected error for blank run ID")
	}
	if _, err := ParseRunID("not-a-uuid"); err == nil {
		t.Error("Expected error for malformed run ID")
	}
}

func TestFingerprintInputs(t *testing.T) {
	a := FingerprintInputs(2, 1, []float64{1, 2}, []int{0, 1})
	b := FingerprintInputs(2, 1, []float64{1, 2}, []int{0, 1})
	c := FingerprintInputs(2, 1, []float64{1, 2}, []int{1, 0})
	d := FingerprintInputs(1, 2, []float64{1, 2}, []int{0, 1})

	if a != b {
		t.Error("Expected identical inputs to hash identically")
	}
	if a == c {
		t.Error("Expected relabeling to change the fingerprint")
	}
	if a == d {
		t.Error("Expected shape to change the fingerprint")
	}
	if len(a.Short()) != 12 {
		t.Errorf("Expected 12-char short hash, got %q", a.Short())
	}
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		err          error
		validation   bool
		insufficient bool
	}{
		{NewInvalidClusterError(3, "is absent"), true, false},
		{NewInvalidCovarianceError("not square"), true, false},
		{NewInvalidInputError("data", "empty"), true, false},
		{NewNoSurvivingDrawsError(10), false, true},
		{ErrDegenerateStatistic, false, true},
		{errors.New("other"), false, false},
	}

	for _, tt := range tests {
		if got := IsValidationError(tt.err); got != tt.validation {
			t.Errorf("IsValidationError(%v) = %v, want %v", tt.err, got, tt.validation)
		}
		if got := IsInsufficientEvidence(tt.err); got != tt.insufficient {
			t.Errorf("IsInsufficientEvidence(%v) = %v, want %v", tt.err, got, tt.insufficient)
		}
	}
}
