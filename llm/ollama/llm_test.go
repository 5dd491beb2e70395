package ollama

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"nutrilog"
	"nutrilog/extract"
)

// mockHTTPClient implements the HTTPClient interface for testing
type mockHTTPClient struct {
	response *http.Response
	err      error
	request  *http.Request
	body     []byte
}

func (m *mockHTTPClient) Do(req *http.Request) (*http.Response, error) {
	m.request = req
	if req.Body != nil {
		m.body, _ = io.ReadAll(req.Body)
	}
	return m.response, m.err
}

// createMockResponse creates a mock HTTP response
func createMockResponse(statusCode int, body string) *http.Response {
	return &http.Response{
		StatusCode: statusCode,
		Status:     http.StatusText(statusCode),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     make(http.Header),
	}
}

func TestNewClient(t *testing.T) {
	tests := []struct {
		name     string
		opts     ClientOpts
		endpoint string
		wantErr  bool
	}{
		{
			name:     "valid client creation",
			opts:     ClientOpts{BaseEndpoint: "http://localhost:11434", ModelID: "llama3.1", HTTPClient: &mockHTTPClient{}},
			endpoint: "http://localhost:11434/api/chat",
		},
		{
			name:     "trailing slash trimmed",
			opts:     ClientOpts{BaseEndpoint: "http://ollama:11434/", ModelID: "llama3.1"},
			endpoint: "http://ollama:11434/api/chat",
		},
		{
			name:    "missing endpoint",
			opts:    ClientOpts{ModelID: "llama3.1"},
			wantErr: true,
		},
		{
			name:    "missing model",
			opts:    ClientOpts{BaseEndpoint: "http://localhost:11434"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewClient(tt.opts)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewClient() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.endpoint != tt.endpoint {
				t.Errorf("NewClient() endpoint = %v, want %v", got.endpoint, tt.endpoint)
			}
			if got.httpClient == nil {
				t.Error("NewClient() left httpClient nil")
			}
		})
	}
}

func TestClient_Invoke(t *testing.T) {
	tests := []struct {
		name        string
		response    *http.Response
		err         error
		want        string
		errContains string
	}{
		{
			name:     "structured content",
			response: createMockResponse(200, `{"message":{"role":"assistant","content":"{\"items\":[]}"},"done":true}`),
			want:     `{"items":[]}`,
		},
		{
			name:        "HTTP error",
			response:    createMockResponse(500, `{"error":"model not found"}`),
			errContains: "LLM_CLIENT:",
		},
		{
			name:        "network error",
			err:         io.EOF,
			errContains: "EOF",
		},
		{
			name:        "malformed body",
			response:    createMockResponse(200, `{"message":`),
			errContains: "decode chat response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := &mockHTTPClient{response: tt.response, err: tt.err}
			client, err := NewClient(ClientOpts{BaseEndpoint: "http://localhost:11434", ModelID: "llama3.1", HTTPClient: mock})
			if err != nil {
				t.Fatal(err)
			}

			got, err := client.Invoke(context.Background(), Prompt{System: "sys", User: "2 eggs", Format: extract.RecordFoods().InputSchema})
			if tt.errContains != "" {
				if err == nil || !strings.Contains(err.Error(), tt.errContains) {
					t.Fatalf("Invoke() error = %v, want containing %q", err, tt.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("Invoke() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Invoke() = %q, want %q", got, tt.want)
			}

			var sent map[string]any
			if err := json.Unmarshal(mock.body, &sent); err != nil {
				t.Fatalf("request body not JSON: %v", err)
			}
			if sent["stream"] != false {
				t.Errorf("stream = %v, want false", sent["stream"])
			}
			if _, ok := sent["format"].(map[string]any); !ok {
				t.Errorf("format schema missing from request: %v", sent["format"])
			}
		})
	}
}

type fakeInvoker struct {
	content string
	err     error
}

func (f fakeInvoker) Invoke(ctx context.Context, p Prompt) (string, error) {
	return f.content, f.err
}

func TestParser(t *testing.T) {
	p := NewParser(fakeInvoker{content: `{"items":[{"name":"rice","quantity":150,"unit":"gram"},{"name":"eggs","quantity":2,"unit":"count"}]}`})

	got, err := p.ParseDescription(context.Background(), "150g rice and 2 eggs")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Name != "rice" || got[1].Unit != nutrilog.UnitCount {
		t.Errorf("ParseDescription() = %+v", got)
	}

	_, err = NewParser(fakeInvoker{content: "rice, eggs"}).ParseDescription(context.Background(), "rice and eggs")
	if _, ok := err.(*nutrilog.ParseFormatError); !ok {
		t.Errorf("ParseDescription() error = %T, want *nutrilog.ParseFormatError", err)
	}
}

func TestEstimator(t *testing.T) {
	e := NewEstimator(fakeInvoker{content: `{"calories_per_100g":130,"protein_per_100g":2.7,"fat_per_100g":0.3,"carbs_per_100g":28}`})

	facts, err := e.Estimate(context.Background(), "rice")
	if err != nil {
		t.Fatal(err)
	}
	if facts.EnergyKcal == nil || *facts.EnergyKcal != 130 {
		t.Errorf("Estimate() energy = %v", facts.EnergyKcal)
	}

	_, err = NewEstimator(fakeInvoker{err: io.ErrUnexpectedEOF}).Estimate(context.Background(), "rice")
	if _, ok := err.(*nutrilog.EstimationError); !ok {
		t.Errorf("Estimate() error = %T, want *nutrilog.EstimationError", err)
	}
}
