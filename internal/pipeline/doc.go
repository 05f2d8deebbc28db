// Package pipeline runs the staged audio analysis for one job: preprocessing
// through an ffmpeg-backed engine, heuristic feature extraction, windowed
// ensemble inference, and optional visualization. All stage collaborators are
// interfaces so the orchestrator can be tested without external binaries.
package pipeline
