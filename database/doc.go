// Package database connects flowkit pipelines to SQL databases through GORM.
//
// Open wraps connection setup with retries and pool settings. NewQuerySource
// pages rows out of a table, NewInsertSink writes one row per item and
// NewBatchInsertSink writes a whole chunk in one transaction, usually behind
// pipeline.Chunk. Errors are classified so pipeline.WithRetry only retries
// failures that can succeed later.
package database
