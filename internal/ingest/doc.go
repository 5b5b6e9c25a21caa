// Package ingest walks an upstream message source and feeds the pipeline.
//
// For every message after the resumption cursor the Producer extracts an
// image locator plus optional classification fields, enqueues a download and
// records one metadata row. Messages without a locator are skipped. Metadata
// is committed every CommitInterval new rows and once more at the end.
package ingest
