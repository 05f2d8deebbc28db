// Package analysis defines the screening data model and the ensemble
// decision rule that turns per-segment predictions into one verdict.
package analysis
