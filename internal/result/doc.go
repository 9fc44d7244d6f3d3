// Package result defines the analysis result contract shared by the pipeline
// and the model adapter.
//
// Parse and FromMap fail closed: a missing field, a wrong JSON type, an
// out-of-range number, or a value outside a closed enumeration rejects the
// whole document with a *ValidationError. Defaults are never filled in.
package result
