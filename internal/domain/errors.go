package domain

import "errors"

var (
	// ErrInvalidCell marks a record whose cell id is not a valid H3 index.
	ErrInvalidCell = errors.New("invalid cell")

	// ErrInvalidIntensity marks a record with negative or NaN radiative power.
	ErrInvalidIntensity = errors.New("invalid intensity")

	// ErrDataSource marks a refresh whose fetch call failed. The previous
	// snapshot stays in place.
	ErrDataSource = errors.New("data source unavailable")
)
