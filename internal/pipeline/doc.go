// Package pipeline drives a submission through the fixed stage sequence:
// extraction, denoising, unblurring, contrast, detection and insights.
//
// Extraction samples frames. The next four stages are bookkeeping only; each
// is held for a configurable dwell so progress is observable, then marked
// complete. Insights completes once the analysis adapter returns a validated
// result. A Run moves Idle to Running to Succeeded or Failed, and its
// completed stages are always a prefix of the declared order. Terminal runs
// never resume; retrying means starting a new Run.
//
// Observers (run store, metrics, logs) are notified synchronously after each
// transition.
package pipeline
