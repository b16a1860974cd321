package proxy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/zykairotis/perplexity-bridge/pkg/convstore"
	"github.com/zykairotis/perplexity-bridge/pkg/perplexity"
)

func upstreamFinal(t *testing.T, w http.ResponseWriter, answer string) {
	t.Helper()
	nested, _ := json.Marshal(map[string]any{"answer": answer})
	steps, _ := json.Marshal([]any{
		map[string]any{
			"step_type": "FINAL",
			"content": map[string]any{
				"answer": string(nested),
				"web_results": []any{
					map[string]any{"name": "Example", "url": "https://example.com"},
				},
			},
		},
	})
	raw, _ := json.Marshal(map[string]any{
		"backend_uuid":     "backend-7",
		"context_uuid":     "context-7",
		"read_write_token": "token-7",
		"text":             string(steps),
	})
	w.Write([]byte("event: message\r\ndata: " + string(raw) + "\r\n\r\n"))
	w.Write([]byte("event: end_of_stream\r\ndata: [DONE]\r\n\r\n"))
}

func newTestProxy(t *testing.T, upstream http.HandlerFunc) (*httptest.Server, func() *http.Request) {
	t.Helper()
	var lastReq *http.Request
	var lastBody []byte
	up := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastReq = r
		lastBody, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(lastBody))
		upstream(w, r)
	}))
	t.Cleanup(up.Close)

	cfg := &Config{
		SpacesPath: filepath.Join(t.TempDir(), "spaces.json"),
		Upstream: &perplexity.Config{
			BaseURL:    up.URL,
			CookiePath: "/nonexistent/cookies.json",
		},
	}
	client := perplexity.NewClient(cfg.Upstream, zerolog.Nop())
	server := NewServer(cfg, client, convstore.NewMemory(), zerolog.Nop())

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return ts, func() *http.Request {
		if lastReq != nil {
			lastReq.Body = io.NopCloser(bytes.NewReader(lastBody))
		}
		return lastReq
	}
}

func postJSON(t *testing.T, url string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp, decoded
}

func TestChatCompletions(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamFinal(t, w, "2+2 equals 4")
	})

	resp, body := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "pro-sonar",
		"messages": []map[string]any{{"role": "user", "content": "what is 2+2"}},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["object"] != "chat.completion" {
		t.Errorf("object = %v", body["object"])
	}
	if id, _ := body["id"].(string); !strings.HasPrefix(id, "chatcmpl-") {
		t.Errorf("id = %v", body["id"])
	}
	choices := body["choices"].([]any)
	message := choices[0].(map[string]any)["message"].(map[string]any)
	if message["content"] != "2+2 equals 4" {
		t.Errorf("content = %v", message["content"])
	}
	usage := body["usage"].(map[string]any)
	prompt := usage["prompt_tokens"].(float64)
	completion := usage["completion_tokens"].(float64)
	total := usage["total_tokens"].(float64)
	if prompt == 0 || completion == 0 || total != prompt+completion {
		t.Errorf("usage = %v", usage)
	}
}

func TestChatCompletionsModelParsing(t *testing.T) {
	cases := []struct {
		model      string
		wantMode   string
		wantPref   string
	}{
		{model: "pro-sonar", wantMode: "copilot", wantPref: "sonar"},
		{model: "deep-research", wantMode: "copilot", wantPref: "pplx_alpha"},
		{model: "lab-research", wantMode: "copilot", wantPref: "pplx_beta"},
		{model: "sonar", wantMode: "copilot", wantPref: "sonar"},
		{model: "auto-", wantMode: "concise", wantPref: "turbo"},
	}
	for _, tc := range cases {
		t.Run(tc.model, func(t *testing.T) {
			var gotMode, gotPref string
			ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
				var body struct {
					Params map[string]any `json:"params"`
				}
				json.NewDecoder(r.Body).Decode(&body)
				gotMode, _ = body.Params["mode"].(string)
				gotPref, _ = body.Params["model_preference"].(string)
				upstreamFinal(t, w, "ok")
			})
			resp, _ := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
				"model":    tc.model,
				"messages": []map[string]any{{"role": "user", "content": "q"}},
			}, nil)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status = %d", resp.StatusCode)
			}
			if gotMode != tc.wantMode || gotPref != tc.wantPref {
				t.Errorf("upstream saw mode=%q pref=%q, want %q/%q", gotMode, gotPref, tc.wantMode, tc.wantPref)
			}
		})
	}
}

func TestChatCompletionsInvalidModel(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream called for invalid model")
	})
	resp, body := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "warp-core",
		"messages": []map[string]any{{"role": "user", "content": "q"}},
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	errBody := body["error"].(map[string]any)
	if errBody["type"] != "invalid_request_error" {
		t.Errorf("error = %v", errBody)
	}
}

func TestChatCompletionsConversationContinuation(t *testing.T) {
	var lastBackend any
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Params map[string]any `json:"params"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		lastBackend = body.Params["last_backend_uuid"]
		upstreamFinal(t, w, "answer")
	})

	headers := map[string]string{"X-Conversation-Id": "conv-1"}
	first := map[string]any{
		"model":    "pro-sonar",
		"messages": []map[string]any{{"role": "user", "content": "first question"}},
	}
	if resp, _ := postJSON(t, ts.URL+"/v1/chat/completions", first, headers); resp.StatusCode != http.StatusOK {
		t.Fatal("first call failed")
	}
	if lastBackend != nil {
		t.Errorf("first call sent last_backend_uuid = %v", lastBackend)
	}

	second := map[string]any{
		"model": "pro-sonar",
		"messages": []map[string]any{
			{"role": "user", "content": "first question"},
			{"role": "assistant", "content": "answer"},
			{"role": "user", "content": "follow up"},
		},
	}
	if resp, _ := postJSON(t, ts.URL+"/v1/chat/completions", second, headers); resp.StatusCode != http.StatusOK {
		t.Fatal("second call failed")
	}
	if lastBackend != "backend-7" {
		t.Errorf("second call sent last_backend_uuid = %v, want backend-7", lastBackend)
	}
}

func TestChatCompletionsStreaming(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamFinal(t, w, "streamed")
	})
	resp, err := http.Post(ts.URL+"/v1/chat/completions", "application/json", strings.NewReader(
		`{"model": "pro-sonar", "stream": true, "messages": [{"role": "user", "content": "q"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "text/event-stream") {
		t.Errorf("content type = %q", ct)
	}
	body, _ := io.ReadAll(resp.Body)
	text := string(body)
	if !strings.Contains(text, "chat.completion.chunk") {
		t.Errorf("no chunk frames in %q", text)
	}
	if !strings.Contains(text, `"content":"streamed"`) {
		t.Errorf("answer delta missing in %q", text)
	}
	if !strings.HasSuffix(strings.TrimSpace(text), "data: [DONE]") {
		t.Errorf("stream not terminated: %q", text)
	}
}

func TestCompletionsPromptForms(t *testing.T) {
	var gotQuery string
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			QueryStr string `json:"query_str"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		gotQuery = body.QueryStr
		upstreamFinal(t, w, "done")
	})

	resp, body := postJSON(t, ts.URL+"/v1/completions", map[string]any{
		"model":  "pro-sonar",
		"prompt": "plain prompt",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["object"] != "text_completion" {
		t.Errorf("object = %v", body["object"])
	}
	if gotQuery != "plain prompt" {
		t.Errorf("query = %q", gotQuery)
	}

	resp, _ = postJSON(t, ts.URL+"/v1/completions", map[string]any{
		"model":  "pro-sonar",
		"prompt": []string{"line one", "line two"},
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list prompt status = %d", resp.StatusCode)
	}
	if gotQuery != "line one\nline two" {
		t.Errorf("joined query = %q", gotQuery)
	}
}

func TestUpstreamFailureIsBadGateway(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusInternalServerError)
	})
	resp, body := postJSON(t, ts.URL+"/v1/chat/completions", map[string]any{
		"model":    "pro-sonar",
		"messages": []map[string]any{{"role": "user", "content": "q"}},
	}, nil)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestAPISearch(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		upstreamFinal(t, w, "search answer")
	})
	resp, body := postJSON(t, ts.URL+"/api/search", map[string]any{
		"query": "what is go",
		"mode":  "pro",
		"model": "sonar",
	}, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["answer"] != "search answer" {
		t.Errorf("answer = %v", body["answer"])
	}
	sources := body["sources"].([]any)
	if len(sources) != 1 {
		t.Errorf("sources = %v", sources)
	}
}

func TestAPISearchValidation(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("upstream called for invalid request")
	})

	resp, _ := postJSON(t, ts.URL+"/api/search", map[string]any{"query": ""}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("empty query status = %d", resp.StatusCode)
	}

	resp, _ = postJSON(t, ts.URL+"/api/search", map[string]any{
		"query":   "q",
		"profile": "marketing",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad profile status = %d", resp.StatusCode)
	}
}

func TestStaticEndpoints(t *testing.T) {
	ts, _ := newTestProxy(t, func(w http.ResponseWriter, r *http.Request) {})

	get := func(path string) map[string]any {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("GET %s = %d", path, resp.StatusCode)
		}
		var body map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			t.Fatal(err)
		}
		return body
	}

	if body := get("/api/health"); body["status"] != "healthy" {
		t.Errorf("health = %v", body)
	}
	if body := get("/api/modes"); len(body["modes"].([]any)) != 5 {
		t.Errorf("modes = %v", body["modes"])
	}
	if body := get("/api/profiles"); len(body["profiles"].(map[string]any)) != 14 {
		t.Errorf("profiles = %v", body["profiles"])
	}
	if body := get("/api/session"); body["has_cookies"] != false {
		t.Errorf("session = %v", body)
	}
	if body := get("/v1/models"); body["object"] != "list" {
		t.Errorf("models = %v", body)
	}
	if body := get("/api/tags"); len(body["models"].([]any)) == 0 {
		t.Errorf("tags = %v", body)
	}
	if body := get("/api/spaces"); body["count"] != float64(0) {
		t.Errorf("spaces = %v", body)
	}
}
