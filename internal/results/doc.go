// Package results persists completed analysis outcomes delivered through the
// gateway's internal relay endpoint.
package results
