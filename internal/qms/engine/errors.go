package engine

import (
	"errors"
	"fmt"
)

// ErrValidation is matched by every input error the engine returns, so callers
// can map them to a 400 response with errors.Is.
var ErrValidation = errors.New("validation failed")

// ErrInvalidTransition is returned when an escalation event is moved against
// its one-way lifecycle.
var ErrInvalidTransition = errors.New("invalid status transition")

// InvalidQuantityError reports a negative quantity, or zero where a positive
// value is required.
type InvalidQuantityError struct {
	Field string
	Value int
}

func (e *InvalidQuantityError) Error() string {
	return fmt.Sprintf("invalid quantity for %s: %d", e.Field, e.Value)
}

func (e *InvalidQuantityError) Is(target error) bool { return target == ErrValidation }

// BalanceError reports that the accounted quantities exceed the available total.
// Scope is "run" for good+rework+scrap against totalProduced, and "rework" for
// the rework outcome split against reworkQty.
type BalanceError struct {
	Scope     string
	Accounted int
	Total     int
}

func (e *BalanceError) Error() string {
	return fmt.Sprintf("%s balance exceeded: accounted %d of %d (delta %d)", e.Scope, e.Accounted, e.Total, e.Delta())
}

// Delta is the amount by which the accounted quantities overshoot the total.
func (e *BalanceError) Delta() int { return e.Accounted - e.Total }

func (e *BalanceError) Is(target error) bool { return target == ErrValidation }

// MissingDefectCodeError reports an itemized defect without a classification code.
type MissingDefectCodeError struct {
	Index int
}

func (e *MissingDefectCodeError) Error() string {
	return fmt.Sprintf("defect item %d has no defect code", e.Index)
}

func (e *MissingDefectCodeError) Is(target error) bool { return target == ErrValidation }

// InvalidDispositionError reports an unknown defect type or rework result.
type InvalidDispositionError struct {
	Index int
	Field string
	Value string
}

func (e *InvalidDispositionError) Error() string {
	return fmt.Sprintf("defect item %d: invalid %s %q", e.Index, e.Field, e.Value)
}

func (e *InvalidDispositionError) Is(target error) bool { return target == ErrValidation }

// InvalidValueError reports a query or option value outside its allowed set.
type InvalidValueError struct {
	Field string
	Value string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("%s: invalid value %q", e.Field, e.Value)
}

func (e *InvalidValueError) Is(target error) bool { return target == ErrValidation }

// RequiredFieldError reports a missing actor or free-text field on a state change.
type RequiredFieldError struct {
	Field string
}

func (e *RequiredFieldError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

func (e *RequiredFieldError) Is(target error) bool { return target == ErrValidation }
