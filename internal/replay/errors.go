package replay

import "errors"

// ErrInvalidOrdering is returned when an event log is not in chronological order.
var ErrInvalidOrdering = errors.New("events are not in deterministic order")

// ErrRepairFromArchive is returned when a repair is requested against an
// archive copy. Repairs always replay the stored event log.
var ErrRepairFromArchive = errors.New("repair requires the stored event log")
