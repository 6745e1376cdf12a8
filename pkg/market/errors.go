package market

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownMarket         = errors.New("unknown market")
	ErrUnknownToken          = errors.New("unknown token")
	ErrMissingMarketOrTokens = errors.New("please provide either the market or the buyToken and sellToken parameters")
	ErrNoSnapshot            = errors.New("exchange metadata not loaded")
)

// ResolutionError reports a market or token the snapshot does not know.
type ResolutionError struct {
	Err  error
	Name string
}

func (e *ResolutionError) Error() string {
	if e.Name == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Name)
}

func (e *ResolutionError) Unwrap() error { return e.Err }
