package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Input validation errors, raised before any sampling begins
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidCluster    = errors.New("invalid cluster")
	ErrInvalidCovariance = errors.New("invalid covariance")

	// Estimation errors
	ErrNoSurvivingDraws    = errors.New("no simulated draws preserved the selected clusters")
	ErrDegenerateStatistic = errors.New("cluster means coincide; perturbation direction undefined")
)

// Error constructors with context
func NewInvalidInputError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

func NewInvalidClusterError(label int, reason string) error {
	return fmt.Errorf("%w: label %d %s", ErrInvalidCluster, label, reason)
}

func NewInvalidCovarianceError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidCovariance, reason)
}

func NewNoSurvivingDrawsError(nDraws int) error {
	return fmt.Errorf("%w: 0 of %d draws survived; increase the number of draws or adjust the proposal", ErrNoSurvivingDraws, nDraws)
}

// Error checking helpers
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidCluster) ||
		errors.Is(err, ErrInvalidCovariance)
}

// IsInsufficientEvidence reports errors that mean the estimate could not be
// formed, as opposed to malformed input. Callers must not read these as p ≈ 0.
func IsInsufficientEvidence(err error) bool {
	return errors.Is(err, ErrNoSurvivingDraws) ||
		errors.Is(err, ErrDegenerateStatistic)
}
