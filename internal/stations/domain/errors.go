package stations

import "errors"

var (
	// ErrInvalidStatus indicates a status outside the four board colours.
	ErrInvalidStatus = errors.New("station: invalid status")
	// ErrStationNotFound indicates a missing station record.
	ErrStationNotFound = errors.New("station: not found")
	// ErrStationExists indicates a duplicate station id.
	ErrStationExists = errors.New("station: already exists")
	// ErrPersistence wraps any failure of the underlying store.
	ErrPersistence = errors.New("station: persistence failure")
)
