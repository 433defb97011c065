package pg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilldesk/receiptd/internal/domain"
)

func TestDecodeNotification(t *testing.T) {
	payload := `{
		"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"status": "pending",
		"payload": {"invoice": {"number": "A-1"}, "items": [{"name": "Espresso"}], "totals": {"total": 4.2}},
		"created_at": "2026-08-20T10:30:00Z"
	}`

	job, err := decodeNotification([]byte(payload))
	require.NoError(t, err)

	assert.Equal(t, "7c9e6679-7425-40de-944b-e07fc1f90ae7", job.ID.String())
	assert.Equal(t, domain.StatusPending, job.Status)
	assert.Equal(t, time.Date(2026, 8, 20, 10, 30, 0, 0, time.UTC), job.CreatedAt)
	assert.JSONEq(t,
		`{"invoice": {"number": "A-1"}, "items": [{"name": "Espresso"}], "totals": {"total": 4.2}}`,
		string(job.Payload))
}

func TestDecodeNotificationErrors(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `NOTIFY garbage`},
		{"truncated", `{"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7", "payload": {"inv`},
		{"missing id", `{"status": "pending", "payload": {}}`},
		{"malformed id", `{"id": "not-a-uuid", "status": "pending", "payload": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeNotification([]byte(tt.payload))
			assert.Error(t, err)
		})
	}
}

func TestDecodeNotificationKeepsNonPendingStatus(t *testing.T) {
	payload := `{
		"id": "7c9e6679-7425-40de-944b-e07fc1f90ae7",
		"status": "printed",
		"payload": {}
	}`

	job, err := decodeNotification([]byte(payload))
	require.NoError(t, err)
	// The intake filters on status; the decoder just reports it.
	assert.Equal(t, domain.StatusPrinted, job.Status)
}
