package analytics

import (
	"errors"
	"fmt"
)

// Minimum sample counts
const (
	MinWeeklyTrendPoints  = 7
	MinMonthlyTrendPoints = 30
	MinOutlierPoints      = 5
	MinAccuracyPoints     = 3
	MinBenchmarkPlayers   = 1
	MinComparedStages     = 2
)

// ErrInsufficientData marks a computation that lacks the samples it needs
var ErrInsufficientData = errors.New("insufficient data")

// InsufficientDataError reports how many samples were available and needed
type InsufficientDataError struct {
	Message        string
	DataPoints     int
	RequiredPoints int
}

func (e *InsufficientDataError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("insufficient data: have %d, need %d", e.DataPoints, e.RequiredPoints)
}

func (e *InsufficientDataError) Unwrap() error {
	return ErrInsufficientData
}

// NewInsufficientData builds an InsufficientDataError
func NewInsufficientData(message string, have, need int) *InsufficientDataError {
	return &InsufficientDataError{Message: message, DataPoints: have, RequiredPoints: need}
}
