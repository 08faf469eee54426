// Package io defines the ingestion seam between external data sources and
// the analysis pipeline.
package io

import "github.com/finsight-labs/riskscan/pkg/table"

// Reader is the interface for loading a transaction table from a source.
// The pipeline itself never reads files or sockets; it consumes whatever
// table a Reader (or an HTTP upload handler) already materialized.
type Reader interface {
	// Read returns the complete table.
	Read() (*table.Table, error)

	// Close releases resources.
	Close() error
}
