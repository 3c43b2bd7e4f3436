// Package model defines the shared identifier and descriptor types of the
// block store: block and dataset ids, task attempts, memory modes, storage
// levels and the record Iterator contract.
package model
