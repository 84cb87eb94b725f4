package integration

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/rhuss/relais/pkg/api"
	"github.com/rhuss/relais/pkg/usage"
)

func TestHealthz(t *testing.T) {
	resp, err := http.Get(testEnv.BaseURL() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestModelsEndpoint(t *testing.T) {
	resp, err := http.Get(testEnv.BaseURL() + "/api/models")
	if err != nil {
		t.Fatalf("GET /api/models: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body struct {
		Models []api.ModelInfo `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Models) != 1 || body.Models[0].ID != "mock-model" {
		t.Errorf("models = %+v", body.Models)
	}
}

func TestUsageRecorded(t *testing.T) {
	// Complete one chat so the ledger has at least one entry.
	resp := postJSON(t, testEnv.BaseURL()+"/api/chat", map[string]any{
		"model": "mock-model",
		"messages": []map[string]string{
			{"role": "user", "content": "Hello"},
		},
	})
	readNDJSON(t, resp)

	usageResp, err := http.Get(testEnv.BaseURL() + "/api/usage?limit=5")
	if err != nil {
		t.Fatalf("GET /api/usage: %v", err)
	}
	defer usageResp.Body.Close()

	if usageResp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", usageResp.StatusCode)
	}
	var body struct {
		Records []usage.Record `json:"records"`
	}
	if err := json.NewDecoder(usageResp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Records) == 0 {
		t.Fatal("no usage records")
	}
	if body.Records[0].TotalTokens != 7 {
		t.Errorf("latest record tokens = %d, want 7", body.Records[0].TotalTokens)
	}
}
