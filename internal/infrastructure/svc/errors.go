package svc

import "errors"

// ErrThrottled is returned when the call gate stayed saturated for the whole
// bounded wait.
var ErrThrottled = errors.New("call rate throttled")

// ErrRetriesExhausted wraps the last failure after the bounded retry budget
// is spent.
var ErrRetriesExhausted = errors.New("retries exhausted")

// ErrNoQuote is returned when no current price is available for an instrument.
var ErrNoQuote = errors.New("no quote available")

// ErrInsufficientData is returned when an instrument has too few history
// periods to evaluate.
var ErrInsufficientData = errors.New("insufficient history")

// ErrNoPosition is returned when a ledger operation targets an instrument
// that is not held.
var ErrNoPosition = errors.New("position not found")

// ErrNoTrades is returned by performance queries for instruments with no
// trade history.
var ErrNoTrades = errors.New("no trades recorded")
