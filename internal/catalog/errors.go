package catalog

import "errors"

// Sentinel errors for catalog lookups and ingest.
var (
	ErrItemNotFound       = errors.New("item not found")
	ErrCollectionNotFound = errors.New("collection not found")
	ErrInvalidItem        = errors.New("invalid item")
)
