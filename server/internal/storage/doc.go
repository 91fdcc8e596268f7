// Package storage writes accepted uploads for the collector.
//
// Two backends share the Store interface:
//
//	fs   <dir>/YYYY-MM-DD/<name>
//	s3   s3://<bucket>/<prefix>/YYYY-MM-DD/<name>
//
// The date is the collector's UTC receive date, not the capture time.
package storage
