// Package domain models the fused atmospheric risk grid and its inputs.
//
// # Data Sources
//
// Observations arrive from three families of upstream collectors, each with a
// different spatial structure:
//
//	Satellite columns (TEMPO NO₂):  gridded fields on the instrument's own
//	  lat/lon axes, typically ~0.05° resolution. The NO₂ product is the
//	  authoritative source for the canonical grid: its sorted unique
//	  coordinates become the grid axes.
//	Ground stations (OpenAQ):       scattered point readings (pm25, o3, no2,
//	  pm10, so2, co), a few dozen stations per region. Interpolated onto the
//	  grid by inverse-distance weighting within a fixed radius.
//	Meteorology (MERRA-2, IMERG):   gridded fields at coarser resolution
//	  (temperature, U/V wind components, precipitation). Resampled onto the
//	  canonical grid by nearest-neighbor.
//
// # Units and Conventions
//
// Latitude and longitude are WGS-84 decimal degrees. Grid axes are strictly
// increasing. Missing values use NaN as the in-memory sentinel across every
// layer; persistence adapters map NaN to SQL NULL and back.
//
//	no2:   molec/cm² (satellite column) or ppb (stations)
//	o3:    ppb
//	pm25:  µg/m³
//	temp:  °C after fusion; Kelvin inputs are detected (layer mean > 200)
//	       and converted during risk composition
//	wind:  m/s, magnitude of the U/V components
//	rain:  mm/hr
//
// # Risk Scale
//
// The composite risk score is a weighted combination of normalized variable
// layers, scaled to 0–100:
//
//	NO₂ 0.30 | O₃ 0.25 | PM2.5 0.20 | temperature factor 0.15 | low-wind factor 0.10
//
// When a variable layer is absent its weight is excluded and the remaining
// weights are renormalized, so partial deployments stay on the same scale.
// Normalization is global min-max over the whole grid extent, which makes
// absolute scores extent-dependent: re-running fusion over a different
// bounding box yields different scores for the same physical location. That
// is a documented property of the index, not a defect.
//
// Classification is a pure function of the score:
//
//	score < 34   → low
//	34 ≤ s < 67  → moderate
//	score ≥ 67   → high
//	NaN          → unknown
//
// Alert severity, used by the alert scan, subdivides the upper range:
//
//	≥ 90 critical | ≥ 80 severe | ≥ 67 high | else moderate
//
// A separate four-band presentation scheme (<34 / 34–44 / 45–69 / ≥70) exists
// for dashboard consumers; see [DashboardBand]. It is a display policy only
// and never feeds back into classification or alerting.
package domain
