package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsight-labs/riskscan/pkg/llm"
	"github.com/finsight-labs/riskscan/pkg/pipeline"
)

// fakeLLM records the last request and plays back a canned reply.
type fakeLLM struct {
	reply string
	err   error
	last  llm.Request
}

func (f *fakeLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	f.last = req
	return f.reply, f.err
}

func newTestServer(client llm.Client) *httptest.Server {
	srv := New(pipeline.New(), client, Config{Model: "mistral-large-latest", HasAPIKey: true})
	return httptest.NewServer(srv.Router())
}

func uploadCSV(t *testing.T, url, filename, content string) *http.Response {
	t.Helper()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	resp, err := http.Post(url, writer.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

const sampleCSV = "transaction_id,amount,country,channel\n" +
	"T1,10,FR,pos\n" +
	"T2,12,FR,pos\n" +
	"T3,11,FR,pos\n" +
	"T4,95000,PA,wire\n"

func TestHealth(t *testing.T) {
	ts := newTestServer(&fakeLLM{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "mistral-large-latest", body["model"])
	assert.Equal(t, true, body["has_api_key"])
}

func TestPing(t *testing.T) {
	ts := newTestServer(&fakeLLM{})
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/ping")
	require.NoError(t, err)

	body := decodeBody(t, resp)
	assert.Equal(t, true, body["pong"])
}

func TestAnalyzeFast(t *testing.T) {
	ts := newTestServer(&fakeLLM{})
	defer ts.Close()

	resp := uploadCSV(t, ts.URL+"/analyze_fast", "tx.csv", sampleCSV)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(4), meta["n_rows"])
	assert.Equal(t, float64(4), meta["n_cols"])

	assert.Contains(t, body["dataset_summary"], "Rows=4, Columns=4.")
	assert.NotEmpty(t, body["request_id"])

	anomalies := body["top_anomalies"].([]any)
	require.Len(t, anomalies, 4)
	first := anomalies[0].(map[string]any)
	assert.Equal(t, "T4", first["transaction_id"])
	assert.Contains(t, first, "_anomaly_score")

	note := body["llm_result"].(map[string]any)
	assert.Equal(t, "Fast mode (no LLM).", note["note"])
}

func TestAnalyzeFastRejectsBadUploads(t *testing.T) {
	ts := newTestServer(&fakeLLM{})
	defer ts.Close()

	t.Run("non-csv extension", func(t *testing.T) {
		resp := uploadCSV(t, ts.URL+"/analyze_fast", "tx.xlsx", sampleCSV)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "Please upload a CSV file.", body["detail"])
	})

	t.Run("header only", func(t *testing.T) {
		resp := uploadCSV(t, ts.URL+"/analyze_fast", "tx.csv", "a,b,c\n")
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "CSV is empty.", body["detail"])
	})

	t.Run("missing file field", func(t *testing.T) {
		var body bytes.Buffer
		writer := multipart.NewWriter(&body)
		require.NoError(t, writer.WriteField("other", "x"))
		require.NoError(t, writer.Close())

		resp, err := http.Post(ts.URL+"/analyze_fast", writer.FormDataContentType(), &body)
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()
	})
}

func TestAnalyzeWithLLM(t *testing.T) {
	fake := &fakeLLM{reply: `{"overall_risk_score": 87, "recommended_actions": ["freeze account"]}`}
	ts := newTestServer(fake)
	defer ts.Close()

	resp := uploadCSV(t, ts.URL+"/analyze", "tx.csv", sampleCSV)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	result := body["llm_result"].(map[string]any)
	assert.Equal(t, float64(87), result["overall_risk_score"])

	// The prompt carried the summary and the anomaly rows.
	assert.Contains(t, fake.last.User, "Rows=4, Columns=4.")
	assert.Contains(t, fake.last.User, "T4")
	assert.Contains(t, fake.last.System, "STRICT JSON")
	assert.Equal(t, 650, fake.last.MaxTokens)
}

func TestAnalyzeLLMFailure(t *testing.T) {
	ts := newTestServer(&fakeLLM{err: errors.New("upstream down")})
	defer ts.Close()

	resp := uploadCSV(t, ts.URL+"/analyze", "tx.csv", sampleCSV)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Contains(t, body["detail"], "upstream down")
}

func TestExecutiveSummary(t *testing.T) {
	fake := &fakeLLM{reply: "  Overall risk is elevated.  "}
	ts := newTestServer(fake)
	defer ts.Close()

	payload := `{"dataset_summary":"Rows=4, Columns=4.","top_anomalies":[{"transaction_id":"T4"}]}`
	resp, err := http.Post(ts.URL+"/executive_summary", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "Overall risk is elevated.", body["executive_summary"])
	assert.Equal(t, 220, fake.last.MaxTokens)
}

func TestExplainAnomaly(t *testing.T) {
	t.Run("valid model JSON", func(t *testing.T) {
		fake := &fakeLLM{reply: `{"verdict":"suspicious","why":"round amount"}`}
		ts := newTestServer(fake)
		defer ts.Close()

		payload := `{"dataset_summary":"s","row":{"transaction_id":"T4","amount":95000}}`
		resp, err := http.Post(ts.URL+"/explain_anomaly", "application/json", strings.NewReader(payload))
		require.NoError(t, err)

		body := decodeBody(t, resp)
		explanation := body["explanation"].(map[string]any)
		assert.Equal(t, "suspicious", explanation["verdict"])
		assert.Contains(t, fake.last.User, "T4")
	})

	t.Run("invalid model JSON falls back to raw", func(t *testing.T) {
		fake := &fakeLLM{reply: "not json at all"}
		ts := newTestServer(fake)
		defer ts.Close()

		payload := `{"dataset_summary":"s","row":{}}`
		resp, err := http.Post(ts.URL+"/explain_anomaly", "application/json", strings.NewReader(payload))
		require.NoError(t, err)

		body := decodeBody(t, resp)
		explanation := body["explanation"].(map[string]any)
		assert.Equal(t, "not json at all", explanation["raw_model_output"])
	})
}

func TestBadJSONBody(t *testing.T) {
	ts := newTestServer(&fakeLLM{})
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/executive_summary", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}
