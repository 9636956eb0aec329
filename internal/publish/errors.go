package publish

import (
	"errors"
	"fmt"
)

// Kind classifies a delivery failure.
type Kind int

const (
	KindTransient Kind = iota + 1
	KindStructural
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStructural:
		return "structural"
	default:
		return "unknown"
	}
}

// ErrStructural matches any delivery error whose request shape was rejected.
var ErrStructural = errors.New("structural delivery error")

// ErrNothingToPublish is returned when content has neither media nor text.
var ErrNothingToPublish = errors.New("nothing to publish")

// DeliveryError wraps a surface failure with its classification.
type DeliveryError struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

func (e *DeliveryError) Is(target error) bool {
	return target == ErrStructural && e.Kind == KindStructural
}

// Structural marks err as a rejection of the request shape.
func Structural(op string, err error) error {
	return &DeliveryError{Kind: KindStructural, Op: op, Err: err}
}

// Transient marks err as retryable.
func Transient(op string, err error) error {
	return &DeliveryError{Kind: KindTransient, Op: op, Err: err}
}

// IsStructural reports whether err, or anything it wraps, is structural.
// Unclassified errors count as transient.
func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural)
}
