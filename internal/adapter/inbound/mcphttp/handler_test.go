package mcphttp_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpGoServer "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i2y/osv-mcp/internal/adapter/inbound/mcphttp"
	"github.com/i2y/osv-mcp/internal/adapter/inbound/mcptools"
	"github.com/i2y/osv-mcp/internal/adapter/outbound/osvapi"
	"github.com/i2y/osv-mcp/internal/usecase"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newStack wires the full server against a fake OSV upstream and returns
// the inbound test server plus a counter of upstream hits.
func newStack(t *testing.T, upstream http.HandlerFunc) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	logger := testLogger()

	var hits atomic.Int32
	osv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		upstream(w, r)
	}))
	t.Cleanup(osv.Close)

	contract, err := osvapi.LoadContract(context.Background())
	require.NoError(t, err)
	client := osvapi.NewClient(osv.Client(), osv.URL+"/v1", contract, logger)
	registry := mcptools.NewRegistry(usecase.NewQueryOSVUseCase(client, logger), logger)
	mcpServer, err := mcptools.NewServer(registry, logger)
	require.NoError(t, err)

	srv := httptest.NewServer(mcphttp.NewRouter(mcphttp.NewBridge(mcpServer, logger), "/mcp", logger))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func post(t *testing.T, url, body string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(data)
}

func okUpstream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"vulns":[{"id":"GHSA-29mw-wpgm-hmr9"}]}`))
}

func TestRouter_Errors(t *testing.T) {
	srv, hits := newStack(t, okUpstream)

	tests := []struct {
		name       string
		method     string
		path       string
		body       string
		wantStatus int
		wantBody   string
		wantType   string
		wantAllow  string
	}{
		{name: "Unknown path GET", method: http.MethodGet, path: "/", wantStatus: 404, wantBody: "Not Found", wantType: "text/plain"},
		{name: "Unknown path POST", method: http.MethodPost, path: "/other", body: `{}`, wantStatus: 404, wantBody: "Not Found", wantType: "text/plain"},
		{name: "Trailing slash is another path", method: http.MethodPost, path: "/mcp/", body: `{}`, wantStatus: 404, wantBody: "Not Found", wantType: "text/plain"},
		{name: "Invalid JSON", method: http.MethodPost, path: "/mcp", body: `{"jsonrpc":`, wantStatus: 400, wantBody: "Invalid JSON body", wantType: "text/plain"},
		{name: "GET on endpoint", method: http.MethodGet, path: "/mcp", wantStatus: 405, wantAllow: "POST"},
		{name: "DELETE on endpoint", method: http.MethodDelete, path: "/mcp", wantStatus: 405, wantAllow: "POST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, srv.URL+tt.path, strings.NewReader(tt.body))
			require.NoError(t, err)
			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, string(body))
			}
			if tt.wantType != "" {
				assert.Equal(t, tt.wantType, resp.Header.Get("Content-Type"))
			}
			if tt.wantAllow != "" {
				assert.Equal(t, tt.wantAllow, resp.Header.Get("Allow"))
			}
		})
	}
	assert.Zero(t, hits.Load())
}

func TestBridge_EmptyBodyIsNoPayload(t *testing.T) {
	srv, _ := newStack(t, okUpstream)

	for _, body := range []string{"", "  \n\t"} {
		resp, data := post(t, srv.URL+"/mcp", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

		var reply struct {
			Error struct {
				Code int `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal([]byte(data), &reply))
		assert.Equal(t, -32600, reply.Error.Code)
	}
}

func TestBridge_ToolsList(t *testing.T) {
	srv, _ := newStack(t, okUpstream)

	resp, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/list","params":{}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.Empty(t, resp.Header.Get("Mcp-Session-Id"))

	var reply struct {
		ID     int `json:"id"`
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &reply))
	assert.Equal(t, 1, reply.ID)
	assert.Len(t, reply.Result.Tools, 2)
}

func TestBridge_ToolCallEndToEnd(t *testing.T) {
	srv, hits := newStack(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/query", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"version":"2.4.1","package":{"name":"jinja2","ecosystem":"PyPI"}}`, string(body))
		okUpstream(w, r)
	})

	resp, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":"a","method":"tools/call","params":{"name":"osv_query",`+
		`"arguments":{"version":" 2.4.1 ","package":{"name":"jinja2","ecosystem":"PyPI"}}}}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var reply struct {
		ID     string `json:"id"`
		Result struct {
			Content []struct {
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &reply))
	assert.Equal(t, "a", reply.ID)
	assert.False(t, reply.Result.IsError)
	require.Len(t, reply.Result.Content, 1)
	assert.True(t, strings.HasPrefix(reply.Result.Content[0].Text, "OSV query request payload:\n{\n  \"version\": \"2.4.1\""))
	assert.Contains(t, reply.Result.Content[0].Text, "\n\nOSV query response:\n{\n  \"vulns\": [")
	assert.Equal(t, int32(1), hits.Load())
}

func TestBridge_InvalidArgumentsNeverReachUpstream(t *testing.T) {
	srv, hits := newStack(t, okUpstream)

	_, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":{"name":"osv_query_batch",`+
		`"arguments":{"queries":[{"commit":"abc"},{"version":"1.0"}]}}}`)

	assert.Contains(t, data, `"isError":true`)
	assert.Contains(t, data, "queries[1]")
	assert.Zero(t, hits.Load())
}

func TestBridge_UpstreamFailureIsToolError(t *testing.T) {
	srv, _ := newStack(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("try later"))
	})

	resp, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"osv_query","arguments":{"commit":"abc"}}}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, data, `"isError":true`)
	assert.Contains(t, data, "OSV query failed: 503 Service Unavailable - try later")
}

func TestBridge_NotificationOnly(t *testing.T) {
	srv, _ := newStack(t, okUpstream)

	resp, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","method":"notifications/initialized"}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Empty(t, data)
}

func TestBridge_Batch(t *testing.T) {
	srv, _ := newStack(t, okUpstream)

	resp, data := post(t, srv.URL+"/mcp", `[`+
		`{"jsonrpc":"2.0","id":1,"method":"ping"},`+
		`{"jsonrpc":"2.0","method":"notifications/initialized"},`+
		`{"jsonrpc":"2.0","id":2,"method":"tools/list"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var replies []struct {
		ID int `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(data), &replies))
	require.Len(t, replies, 2)
	assert.Equal(t, 1, replies[0].ID)
	assert.Equal(t, 2, replies[1].ID)
}

func TestBridge_EmptyBatch(t *testing.T) {
	srv, _ := newStack(t, okUpstream)

	resp, data := post(t, srv.URL+"/mcp", `[]`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, data, `"code":-32600`)
}

type panickingHandler struct{}

func (panickingHandler) HandleMessage(context.Context, json.RawMessage) mcp.JSONRPCMessage {
	panic("boom")
}

func (panickingHandler) WithContext(ctx context.Context, _ mcpGoServer.ClientSession) context.Context {
	return ctx
}

func TestBridge_PanicBecomes500(t *testing.T) {
	logger := testLogger()
	srv := httptest.NewServer(mcphttp.NewRouter(mcphttp.NewBridge(panickingHandler{}, logger), "/mcp", logger))
	t.Cleanup(srv.Close)

	resp, data := post(t, srv.URL+"/mcp", `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Internal server error", data)
}
