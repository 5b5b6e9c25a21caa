// Package pipeline moves image work items from the producer to a fixed pool
// of download workers.
//
// Queue is a bounded FIFO with task accounting (Put, Get, Done, Join). Pool
// starts N workers that each own an HTTP client, fetch the item locator and
// hand the payload to an Uploader. Pool.Shutdown drains the queue, sends one
// shutdown marker per worker and waits for them under a single deadline,
// abandoning any that do not exit in time.
package pipeline
