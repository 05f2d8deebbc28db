// Package worker runs the analysis service: it accepts audio submissions,
// drives each job through the staged pipeline on its own goroutine, publishes
// progress to the bus, and delivers the terminal webhook callback.
package worker
