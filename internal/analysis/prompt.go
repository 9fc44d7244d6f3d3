package analysis

import (
	"fmt"
	"strings"
)

const unknownSource = "unknown"

const promptTemplate = `Analyze these traffic video frames and provide detailed insights. Return a JSON object with the following structure (IMPORTANT: Return ONLY valid JSON, no markdown formatting):
{
  "vehicleCount": number,
  "trafficDensity": "Light" | "Moderate" | "Heavy" | "Congested",
  "averageSpeed": number,
  "congestionLevel": number (0-100),
  "detectedVehicles": [
    { "type": "Car" | "Truck" | "Bus" | "Motorcycle", "count": number, "confidence": number (0-1) }
  ],
  "flowRate": number,
  "anomalies": [string],
  "processingQuality": "Low" | "Medium" | "High",
  "insights": [string]
}

Video filename: %s

Analyze the frames carefully and provide realistic traffic metrics. Be specific and detailed in your analysis.`

// BuildPrompt renders the fixed instruction prompt for a source label.
func BuildPrompt(sourceLabel string) string {
	label := strings.TrimSpace(sourceLabel)
	if label == "" {
		label = unknownSource
	}
	return fmt.Sprintf(promptTemplate, label)
}
