//go:build integration

package integration

import (
	"context"
	"net/http"
	"strconv"
	"testing"

	"github.com/opsdesk/opsdesk/internal/testutil"
	"github.com/stretchr/testify/require"
)

// incidentData mirrors the incident object returned by the API.
type incidentData struct {
	ID          int64   `json:"id"`
	ReportedBy  string  `json:"reported_by"`
	AssignedTo  string  `json:"assigned_to"`
	DateTime    string  `json:"date_time"`
	Description string  `json:"description"`
	Attachment  *string `json:"attachment"`
	Status      string  `json:"status"`
	ClosedOn    *string `json:"closed_on"`
	TotalTime   *string `json:"total_time"`
	CreatedAt   string  `json:"created_at"`
}

type incidentEnvelope struct {
	Data incidentData `json:"data"`
}

type incidentListEnvelope struct {
	Data []incidentData `json:"data"`
}

type errorEnvelope struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// incidentForm returns a valid multipart form for reporting an incident.
// Override individual fields in the returned map as needed.
func incidentForm() map[string]string {
	return map[string]string{
		"reportedBy":  "Dana Reyes",
		"assignedTo":  "Lee Cormack",
		"dateTime":    "2026-03-05T14:30:00Z",
		"description": "API latency spike in the eu-west cluster",
	}
}

// reportIncident creates an incident without an attachment and returns it.
// Use t.Cleanup with deleteIncident for automatic removal.
func reportIncident(t *testing.T, client *testutil.Client, fields map[string]string) incidentData {
	t.Helper()

	resp, err := client.PostMultipart("/api/v1/incidents", fields, "", nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result incidentEnvelope
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// reportIncidentWithFile creates an incident with an attachment and returns it.
func reportIncidentWithFile(t *testing.T, client *testutil.Client, fields map[string]string, filename string, file []byte) incidentData {
	t.Helper()

	resp, err := client.PostMultipart("/api/v1/incidents", fields, filename, file)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var result incidentEnvelope
	testutil.DecodeJSON(t, resp, &result)
	return result.Data
}

// deleteIncident removes an incident. Does not fail if already deleted.
func deleteIncident(t *testing.T, client *testutil.Client, id int64) {
	t.Helper()
	resp, err := client.DELETE("/api/v1/incidents/" + strconv.FormatInt(id, 10))
	if err != nil {
		t.Logf("cleanup warning (incident %d): %v", id, err)
		return
	}
	resp.Body.Close()
}

// resetIncidents empties the incidents table so list and export assertions
// only see records created by the test itself.
func resetIncidents(t *testing.T) {
	t.Helper()
	_, err := testDB.Exec(context.Background(), "TRUNCATE incidents RESTART IDENTITY")
	require.NoError(t, err)
}
