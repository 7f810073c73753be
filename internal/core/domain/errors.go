package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the outcomes callers are expected to handle.
// Transports map kinds to their own status codes.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindOverlap
	KindNotFound
	KindNotActive
	KindOutOfStock
	KindAlreadyPurchased
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindOverlap:
		return "overlap"
	case KindNotFound:
		return "not_found"
	case KindNotActive:
		return "not_active"
	case KindOutOfStock:
		return "out_of_stock"
	case KindAlreadyPurchased:
		return "already_purchased"
	default:
		return "internal"
	}
}

type Error struct {
	Kind    ErrorKind
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// holds for every not-found error regardless of message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrValidation       = &Error{Kind: KindValidation, Message: "invalid input"}
	ErrOverlap          = &Error{Kind: KindOverlap, Message: "flash sale overlaps with existing flash sale"}
	ErrNotFound         = &Error{Kind: KindNotFound, Message: "not found"}
	ErrNotActive        = &Error{Kind: KindNotActive, Message: "flash sale is not active"}
	ErrOutOfStock       = &Error{Kind: KindOutOfStock, Message: "flash sale is out of stock"}
	ErrAlreadyPurchased = &Error{Kind: KindAlreadyPurchased, Message: "order already purchased"}
)

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
