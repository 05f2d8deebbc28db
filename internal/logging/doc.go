// Package logging wires slog handlers for console and JSON output and
// provides the attribute helpers shared across cognivoice components.
package logging
