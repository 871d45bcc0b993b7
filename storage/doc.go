// Package storage connects flowkit pipelines to object storage.
//
// Two backends implement Store: the local filesystem and Amazon S3 (or any
// S3-compatible service such as MinIO). NewPutSink writes blobs,
// NewFetchStage reads them back by key and NewListSource emits the objects
// under a prefix.
package storage
