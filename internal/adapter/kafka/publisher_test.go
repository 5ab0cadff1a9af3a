package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/air-risk-grid-service/internal/domain"
	"github.com/couchcryptid/air-risk-grid-service/internal/query"
)

func TestSerializeAlert(t *testing.T) {
	alert := query.Alert{
		Cell: query.Cell{
			Lat:       34.0,
			Lon:       -118.2,
			CellID:    "1_1",
			RiskScore: 92.5,
			RiskClass: domain.RiskHigh,
		},
		Severity:   domain.SeverityCritical,
		ExceededBy: 26.5,
		Message:    domain.AdvisoryFor(92.5),
	}
	producedAt := time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC)

	msg, err := serializeAlert(alert, "los-angeles", producedAt)
	require.NoError(t, err)

	assert.Equal(t, []byte("los-angeles:1_1"), msg.Key, "key compacts per region and cell")

	var payload map[string]any
	require.NoError(t, json.Unmarshal(msg.Value, &payload))
	assert.Equal(t, 92.5, payload["risk_score"])
	assert.Equal(t, "critical", payload["alert_level"])
	assert.Equal(t, 26.5, payload["exceeded_by"])
	assert.Equal(t, "CRITICAL: avoid outdoor activity", payload["message"])

	require.Len(t, msg.Headers, 2)
	assert.Equal(t, "severity", msg.Headers[0].Key)
	assert.Equal(t, []byte("critical"), msg.Headers[0].Value)
	assert.Equal(t, "produced_at", msg.Headers[1].Key)
	assert.Equal(t, []byte("2026-08-30T18:00:00Z"), msg.Headers[1].Value)
}
