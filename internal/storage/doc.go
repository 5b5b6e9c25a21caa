// Package storage uploads collected images to an object store.
//
// A Sink wraps one backend (MinIO through minio-go, or any gocloud.dev/blob
// bucket including a local directory) and presents a single Upload call that
// never returns an error: failures are logged and reported as false so the
// worker pool can count them without aborting the run. The target bucket is
// ensured lazily on first use and retried on later uploads if that fails.
package storage
