// Package progress implements the per-job publish/subscribe bus that feeds
// live SSE streams, including the keepalive heartbeat sweep.
package progress
