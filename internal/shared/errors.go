package shared

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by every core module. Services wrap these sentinels
// with detail via the helper constructors so callers can branch with errors.Is
// while handlers still get a human-readable message.
var (
	// ErrValidation indicates bad input or an illegal value.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate indicates a unique-constraint violation, e.g. codes.
	ErrDuplicate = errors.New("duplicate resource")
	// ErrInsufficientStock indicates a stock or component shortage.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrBusinessRule indicates a disallowed state transition or policy breach.
	ErrBusinessRule = errors.New("business rule violation")
)

// Validationf wraps ErrValidation with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf wraps ErrNotFound with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Duplicatef wraps ErrDuplicate with a formatted detail message.
func Duplicatef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrDuplicate, fmt.Sprintf(format, args...))
}

// InsufficientStockf wraps ErrInsufficientStock with a formatted detail message.
func InsufficientStockf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInsufficientStock, fmt.Sprintf(format, args...))
}

// BusinessRulef wraps ErrBusinessRule with a formatted detail message.
func BusinessRulef(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrBusinessRule, fmt.Sprintf(format, args...))
}
