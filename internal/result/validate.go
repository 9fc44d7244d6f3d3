package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
)

// ValidationError names the first field that broke the contract.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("analysis result: %s: %s", e.Field, e.Reason)
}

func fieldErr(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// Parse decodes raw JSON and validates it against the contract. Every field is
// required; unknown fields are ignored. On failure no result is returned.
func Parse(raw []byte) (AnalysisResult, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return AnalysisResult{}, fmt.Errorf("analysis result: decode: %w", err)
	}
	if doc == nil {
		return AnalysisResult{}, fieldErr("$", "expected an object")
	}
	return FromMap(doc)
}

// FromMap validates an already decoded JSON object. Numbers may be float64 or
// json.Number.
func FromMap(doc map[string]any) (AnalysisResult, error) {
	var (
		out AnalysisResult
		err error
	)
	if out.VehicleCount, err = requireCount(doc, "vehicleCount"); err != nil {
		return AnalysisResult{}, err
	}
	density, err := requireString(doc, "trafficDensity")
	if err != nil {
		return AnalysisResult{}, err
	}
	out.TrafficDensity = Density(density)
	if out.AverageSpeed, err = requireNumber(doc, "averageSpeed"); err != nil {
		return AnalysisResult{}, err
	}
	if out.CongestionLevel, err = requireNumber(doc, "congestionLevel"); err != nil {
		return AnalysisResult{}, err
	}
	if out.DetectedVehicles, err = requireVehicles(doc, "detectedVehicles"); err != nil {
		return AnalysisResult{}, err
	}
	if out.FlowRate, err = requireNumber(doc, "flowRate"); err != nil {
		return AnalysisResult{}, err
	}
	if out.Anomalies, err = requireStrings(doc, "anomalies"); err != nil {
		return AnalysisResult{}, err
	}
	quality, err := requireString(doc, "processingQuality")
	if err != nil {
		return AnalysisResult{}, err
	}
	out.ProcessingQuality = Quality(quality)
	if out.Insights, err = requireStrings(doc, "insights"); err != nil {
		return AnalysisResult{}, err
	}
	if err := out.Validate(); err != nil {
		return AnalysisResult{}, err
	}
	return out, nil
}

// Validate checks ranges and enumerations on a typed result.
func (r AnalysisResult) Validate() error {
	if r.VehicleCount < 0 {
		return fieldErr("vehicleCount", "must not be negative")
	}
	if !slices.Contains(densities, r.TrafficDensity) {
		return fieldErr("trafficDensity", "unknown value %q", r.TrafficDensity)
	}
	if !finite(r.AverageSpeed) || r.AverageSpeed < 0 {
		return fieldErr("averageSpeed", "must be a non-negative number")
	}
	if !finite(r.CongestionLevel) || r.CongestionLevel < 0 || r.CongestionLevel > 100 {
		return fieldErr("congestionLevel", "must be between 0 and 100")
	}
	if r.DetectedVehicles == nil {
		return fieldErr("detectedVehicles", "is required")
	}
	for i, v := range r.DetectedVehicles {
		field := fmt.Sprintf("detectedVehicles[%d]", i)
		if !slices.Contains(vehicleTypes, v.Type) {
			return fieldErr(field+".type", "unknown value %q", v.Type)
		}
		if v.Count < 0 {
			return fieldErr(field+".count", "must not be negative")
		}
		if !finite(v.Confidence) || v.Confidence < 0 || v.Confidence > 1 {
			return fieldErr(field+".confidence", "must be between 0 and 1")
		}
	}
	if !finite(r.FlowRate) || r.FlowRate < 0 {
		return fieldErr("flowRate", "must be a non-negative number")
	}
	if r.Anomalies == nil {
		return fieldErr("anomalies", "is required")
	}
	if !slices.Contains(qualities, r.ProcessingQuality) {
		return fieldErr("processingQuality", "unknown value %q", r.ProcessingQuality)
	}
	if r.Insights == nil {
		return fieldErr("insights", "is required")
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func lookup(doc map[string]any, key string) (any, error) {
	value, ok := doc[key]
	if !ok || value == nil {
		return nil, fieldErr(key, "is required")
	}
	return value, nil
}

func toFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case int:
		return float64(v), true
	default:
		return 0, false
	}
}

func requireNumber(doc map[string]any, key string) (float64, error) {
	value, err := lookup(doc, key)
	if err != nil {
		return 0, err
	}
	f, ok := toFloat(value)
	if !ok {
		return 0, fieldErr(key, "expected a number, got %T", value)
	}
	return f, nil
}

func asCount(field string, value any) (int, error) {
	f, ok := toFloat(value)
	if !ok {
		return 0, fieldErr(field, "expected an integer, got %T", value)
	}
	if f != math.Trunc(f) || !finite(f) {
		return 0, fieldErr(field, "expected an integer, got %v", f)
	}
	if f < 0 {
		return 0, fieldErr(field, "must not be negative")
	}
	if f > math.MaxInt32 {
		return 0, fieldErr(field, "out of range")
	}
	return int(f), nil
}

func requireCount(doc map[string]any, key string) (int, error) {
	value, err := lookup(doc, key)
	if err != nil {
		return 0, err
	}
	return asCount(key, value)
}

func requireString(doc map[string]any, key string) (string, error) {
	value, err := lookup(doc, key)
	if err != nil {
		return "", err
	}
	s, ok := value.(string)
	if !ok {
		return "", fieldErr(key, "expected a string, got %T", value)
	}
	return s, nil
}

func requireStrings(doc map[string]any, key string) ([]string, error) {
	value, err := lookup(doc, key)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fieldErr(key, "expected an array, got %T", value)
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		s, ok := item.(string)
		if !ok {
			return nil, fieldErr(fmt.Sprintf("%s[%d]", key, i), "expected a string, got %T", item)
		}
		out = append(out, s)
	}
	return out, nil
}

func requireVehicles(doc map[string]any, key string) ([]DetectedVehicle, error) {
	value, err := lookup(doc, key)
	if err != nil {
		return nil, err
	}
	items, ok := value.([]any)
	if !ok {
		return nil, fieldErr(key, "expected an array, got %T", value)
	}
	out := make([]DetectedVehicle, 0, len(items))
	for i, item := range items {
		field := fmt.Sprintf("%s[%d]", key, i)
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fieldErr(field, "expected an object, got %T", item)
		}
		typ, err := requireString(obj, "type")
		if err != nil {
			return nil, prefixField(field, err)
		}
		countValue, err := lookup(obj, "count")
		if err != nil {
			return nil, prefixField(field, err)
		}
		count, err := asCount(field+".count", countValue)
		if err != nil {
			return nil, err
		}
		confidence, err := requireNumber(obj, "confidence")
		if err != nil {
			return nil, prefixField(field, err)
		}
		out = append(out, DetectedVehicle{Type: VehicleType(typ), Count: count, Confidence: confidence})
	}
	return out, nil
}

func prefixField(prefix string, err error) error {
	if ve, ok := err.(*ValidationError); ok {
		return &ValidationError{Field: prefix + "." + ve.Field, Reason: ve.Reason}
	}
	return err
}
