// Package spool holds captures that could not be delivered, in one flat
// directory that survives restarts.
//
// Each item is a file named <YYYYMMDDTHHMMSSffffffZ>_<source><ext>; the name
// is the item's identity and its capture time gives the drain order. Files
// whose names do not parse are still managed, ordered by modification time.
//
// The store is bounded two ways: Put evicts the oldest item when MaxFiles is
// reached, and SweepExpired removes items older than the retention window.
// Every operation runs under one mutex so the count check, eviction and
// insert are atomic with respect to a concurrent Clear or List from the
// control API.
package spool
