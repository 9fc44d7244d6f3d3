// Package api exposes the analysis pipeline over HTTP using gin.
//
// Routes:
//
//	POST /api/analyze   base64 frames {frames, fileName, fileSize} -> AnalysisResult
//	POST /api/videos    multipart upload (field "video") -> {run, result}
//	GET  /api/runs      recent runs with per-state counts
//	GET  /api/runs/:id  one run
//	GET  /healthz       dependency readiness
//	GET  /metrics       Prometheus exposition
//
// Failures reply with ErrorResponse. Status codes for /api/analyze follow the
// adapter mapping: 400 no frames, 413 payload too large, 401 invalid
// credential, 500 for a missing credential or an empty/unparsable model reply.
//
// RunService sits between the handlers and the pipeline so the CLI can reuse
// the same DTOs (Run, RunList) when rendering history.
package api
