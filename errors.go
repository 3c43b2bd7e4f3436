package blockstore

import (
	"errors"
	"fmt"

	"github.com/hupe1980/blockstore/model"
)

var (
	// ErrDuplicateBlock is returned by a put for an id that is already resident
	// or mid-put.
	ErrDuplicateBlock = errors.New("block already exists")

	// ErrUnknownBlock is returned when a read targets an absent block.
	ErrUnknownBlock = errors.New("unknown block")

	// ErrReentrantEviction is returned when an eviction handler calls back
	// into the store on the eviction path.
	ErrReentrantEviction = errors.New("eviction handler re-entered the store")

	// ErrStoreClosed is returned for operations on a closed store.
	ErrStoreClosed = errors.New("store is closed")
)

// RejectReason explains why an admission was refused.
type RejectReason uint8

const (
	// RejectInsufficientMemory: the pool cannot hold the block even after
	// eviction.
	RejectInsufficientMemory RejectReason = iota + 1
	// RejectEvictionForbidden: enough resident bytes exist, but they belong
	// to the requesting block's own dataset and may not be displaced.
	RejectEvictionForbidden
)

// String returns a string representation of the RejectReason.
func (r RejectReason) String() string {
	switch r {
	case RejectInsufficientMemory:
		return "insufficient memory"
	case RejectEvictionForbidden:
		return "eviction forbidden"
	default:
		return fmt.Sprintf("RejectReason(%d)", uint8(r))
	}
}

// AdmissionRejectedError indicates a put could not be accommodated. For
// iterator puts the accompanying Partial handle recovers the records.
type AdmissionRejectedError struct {
	ID     model.BlockID
	Reason RejectReason
}

func (e *AdmissionRejectedError) Error() string {
	return fmt.Sprintf("admission rejected for %s: %s", e.ID, e.Reason)
}

// WrongVariantError indicates a typed read against the other entry variant:
// GetBytes on a deserialized entry, or GetValues on a serialized one.
// It is a programming error, fatal to the calling operation.
type WrongVariantError struct {
	ID   model.BlockID
	Want string
	Got  string
}

func (e *WrongVariantError) Error() string {
	return fmt.Sprintf("block %s holds a %s entry, not %s", e.ID, e.Got, e.Want)
}
