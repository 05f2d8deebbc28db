// Package gateway runs the client-facing service: it forwards submissions to
// the worker, streams progress to clients, and receives the worker's terminal
// callback on the internal relay endpoint, persisting successful outcomes.
package gateway
