package console

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dudk/console/signal"
)

var (
	// ErrFixedProcessor is returned on attempt to remove Amp, PeakMeter
	// or main Delivery of the route.
	ErrFixedProcessor = errors.New("fixed processor can't be removed")
	// ErrProcessorNotFound is returned if processor is not in the chain.
	ErrProcessorNotFound = errors.New("processor not found")
	// ErrDuplicateProcessor is returned if processor is already in the
	// chain.
	ErrDuplicateProcessor = errors.New("processor already in chain")
	// ErrInvalidOrder is returned if new order doesn't match visible
	// processors of the chain.
	ErrInvalidOrder = errors.New("invalid processors order")
	// ErrNilState is returned when nil state is restored.
	ErrNilState = errors.New("nil state")
)

// NegotiationError is returned when processor at Index can't accept Input
// channel count. The chain stays in its previous configuration.
type NegotiationError struct {
	Index     int
	Processor string
	Input     signal.ChannelCount
}

func (e *NegotiationError) Error() string {
	return fmt.Sprintf("negotiation failed at stage %d (%s): can't accept %v", e.Index, e.Processor, e.Input)
}

// Errors wraps errors that might occur when multiple entities are failing,
// for example on teardown.
type Errors []error

func (e Errors) Error() string {
	s := []string{}
	for _, se := range e {
		s = append(s, se.Error())
	}
	return strings.Join(s, ",")
}

// Is checks if any of errors match provided sentinel error.
func (e Errors) Is(err error) bool {
	for _, se := range e {
		if errors.Is(se, err) {
			return true
		}
	}
	return false
}

// Add appends non-nil error.
func (e Errors) Add(err error) Errors {
	if err == nil {
		return e
	}
	return append(e, err)
}

// Ret returns untyped nil if error is list is empty.
func (e Errors) Ret() error {
	if len(e) > 0 {
		return e
	}
	return nil
}
