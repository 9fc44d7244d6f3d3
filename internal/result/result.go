package result

import (
	"fmt"
	"strings"
)

// Density is the closed set of traffic density labels.
type Density string

const (
	DensityLight     Density = "Light"
	DensityModerate  Density = "Moderate"
	DensityHeavy     Density = "Heavy"
	DensityCongested Density = "Congested"
)

// VehicleType is the closed set of vehicle categories the model may report.
type VehicleType string

const (
	VehicleCar        VehicleType = "Car"
	VehicleTruck      VehicleType = "Truck"
	VehicleBus        VehicleType = "Bus"
	VehicleMotorcycle VehicleType = "Motorcycle"
)

// Quality is the closed set of processing-quality labels.
type Quality string

const (
	QualityLow    Quality = "Low"
	QualityMedium Quality = "Medium"
	QualityHigh   Quality = "High"
)

var (
	densities    = []Density{DensityLight, DensityModerate, DensityHeavy, DensityCongested}
	vehicleTypes = []VehicleType{VehicleCar, VehicleTruck, VehicleBus, VehicleMotorcycle}
	qualities    = []Quality{QualityLow, QualityMedium, QualityHigh}
)

// DetectedVehicle is one per-type tally.
type DetectedVehicle struct {
	Type       VehicleType `json:"type"`
	Count      int         `json:"count"`
	Confidence float64     `json:"confidence"`
}

// AnalysisResult is the validated outcome of one analysis. Values only exist
// after Parse or Validate succeeds; there is no partially populated result.
type AnalysisResult struct {
	VehicleCount      int               `json:"vehicleCount"`
	TrafficDensity    Density           `json:"trafficDensity"`
	AverageSpeed      float64           `json:"averageSpeed"`
	CongestionLevel   float64           `json:"congestionLevel"`
	DetectedVehicles  []DetectedVehicle `json:"detectedVehicles"`
	FlowRate          float64           `json:"flowRate"`
	Anomalies         []string          `json:"anomalies"`
	ProcessingQuality Quality           `json:"processingQuality"`
	Insights          []string          `json:"insights"`
}

// Summary renders the result as human-readable lines, speed in km/h and flow
// rate in vehicles per minute.
func (r AnalysisResult) Summary() []string {
	lines := []string{
		fmt.Sprintf("Vehicles: %d", r.VehicleCount),
		fmt.Sprintf("Density: %s", r.TrafficDensity),
		fmt.Sprintf("Average speed: %.1f km/h", r.AverageSpeed),
		fmt.Sprintf("Congestion: %.0f%%", r.CongestionLevel),
		fmt.Sprintf("Flow rate: %.1f veh/min", r.FlowRate),
		fmt.Sprintf("Processing quality: %s", r.ProcessingQuality),
	}
	for _, v := range r.DetectedVehicles {
		lines = append(lines, fmt.Sprintf("  %s: %d (%.0f%% confidence)", v.Type, v.Count, v.Confidence*100))
	}
	if len(r.Anomalies) > 0 {
		lines = append(lines, "Anomalies: "+strings.Join(r.Anomalies, "; "))
	}
	for _, insight := range r.Insights {
		lines = append(lines, "- "+insight)
	}
	return lines
}
