package domain

import (
	"image/color"
	"math"
)

// Layer names reserved for the fusion output.
const (
	LayerRiskScore = "risk_score"
	LayerRiskClass = "risk_class"
)

// Variable names the compositor knows how to weight.
const (
	VarNO2  = "no2"
	VarO3   = "o3"
	VarPM25 = "pm25"
	VarTemp = "temp"
	VarWind = "wind"
	VarRain = "rain"
)

// DefaultWeights is the canonical contribution of each variable to the
// composite score. Weights of absent variables are excluded and the rest
// renormalized, so the score stays on a 0–100 scale regardless of coverage.
var DefaultWeights = map[string]float64{
	VarNO2:  0.30,
	VarO3:   0.25,
	VarPM25: 0.20,
	VarTemp: 0.15,
	VarWind: 0.10,
}

// RiskClass is the three-level categorical classification of a score.
type RiskClass string

const (
	RiskLow      RiskClass = "low"
	RiskModerate RiskClass = "moderate"
	RiskHigh     RiskClass = "high"
	RiskUnknown  RiskClass = "unknown"
)

// Classify maps a score to its canonical class: <34 low, 34 to <67 moderate,
// >=67 high, NaN unknown.
func Classify(score float64) RiskClass {
	switch {
	case math.IsNaN(score):
		return RiskUnknown
	case score >= 67:
		return RiskHigh
	case score >= 34:
		return RiskModerate
	default:
		return RiskLow
	}
}

// classCode is the numeric encoding used to store risk_class as a layer:
// 0 low, 1 moderate, 2 high; NaN stays unknown.
var classCode = map[RiskClass]float64{
	RiskLow:      0,
	RiskModerate: 1,
	RiskHigh:     2,
}

// ClassCode returns the layer encoding for a class. Unknown encodes as NaN.
func ClassCode(c RiskClass) float64 {
	if v, ok := classCode[c]; ok {
		return v
	}
	return math.NaN()
}

// ClassFromCode inverts ClassCode.
func ClassFromCode(v float64) RiskClass {
	switch v {
	case 0:
		return RiskLow
	case 1:
		return RiskModerate
	case 2:
		return RiskHigh
	default:
		return RiskUnknown
	}
}

// AlertSeverity tiers the upper end of the risk scale for alerting.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeveritySevere   AlertSeverity = "severe"
	SeverityHigh     AlertSeverity = "high"
	SeverityModerate AlertSeverity = "moderate"
)

// SeverityFor tiers a score: ≥90 critical, ≥80 severe, ≥67 high, else moderate.
func SeverityFor(score float64) AlertSeverity {
	switch {
	case score >= 90:
		return SeverityCritical
	case score >= 80:
		return SeveritySevere
	case score >= 67:
		return SeverityHigh
	default:
		return SeverityModerate
	}
}

// AdvisoryFor returns the public health advisory attached to alert payloads.
func AdvisoryFor(score float64) string {
	switch {
	case score >= 90:
		return "CRITICAL: avoid outdoor activity"
	case score >= 80:
		return "SEVERE: limit outdoor exposure"
	case score >= 67:
		return "HIGH: sensitive groups take caution"
	default:
		return "MODERATE: continued monitoring"
	}
}

// DashboardBand is the four-band presentation scheme used only by dashboard
// consumers (<34 good, 34–44 fair, 45–69 degraded, ≥70 poor). It is a
// display policy, deliberately distinct from Classify.
func DashboardBand(score float64) string {
	switch {
	case math.IsNaN(score):
		return "unknown"
	case score >= 70:
		return "poor"
	case score >= 45:
		return "degraded"
	case score >= 34:
		return "fair"
	default:
		return "good"
	}
}

// Risk tile palette: semi-transparent traffic-light colors keyed on the
// canonical class boundaries.
var (
	ColorHigh     = color.RGBA{R: 255, G: 0, B: 0, A: 180}
	ColorModerate = color.RGBA{R: 255, G: 255, B: 0, A: 180}
	ColorLow      = color.RGBA{R: 0, G: 255, B: 0, A: 180}
	ColorNone     = color.RGBA{} // fully transparent
)

// ColorFor maps a score to its tile color. NaN renders transparent.
func ColorFor(score float64) color.RGBA {
	switch Classify(score) {
	case RiskHigh:
		return ColorHigh
	case RiskModerate:
		return ColorModerate
	case RiskLow:
		return ColorLow
	default:
		return ColorNone
	}
}

// HexColorFor is the web form of ColorFor, used in GeoJSON properties.
func HexColorFor(class RiskClass) string {
	switch class {
	case RiskHigh:
		return "#FF0000"
	case RiskModerate:
		return "#FFFF00"
	case RiskLow:
		return "#00FF00"
	default:
		return "#808080"
	}
}

// SeverityHexColor colors alert features by severity tier.
func SeverityHexColor(s AlertSeverity) string {
	switch s {
	case SeverityCritical:
		return "#8B0000"
	case SeveritySevere:
		return "#FF0000"
	case SeverityHigh:
		return "#FF6600"
	default:
		return "#FFFF00"
	}
}
