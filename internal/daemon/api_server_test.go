package daemon

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"librarian/internal/api"
	"librarian/internal/config"
	"librarian/internal/ledger"
	"librarian/internal/testsupport"
)

func serve(t *testing.T, h http.Handler, method, target, body string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("failed to decode response %q: %v", w.Body.String(), err)
	}
	return out
}

const createBody = `{"user_id":"user-1","channel_id":"general","candidate":{"title":"Project Hail Mary","author":"Andy Weir","seeders":4,"download_url":"magnet:?xt=urn:btih:phm"}}`

func TestAPICreateAndApproveRequest(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.api.handler

	w := serve(t, h, http.MethodPost, "/api/requests", createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	created := decodeBody[api.RequestView](t, w)
	if created.State != string(ledger.StateAwaitingApproval) {
		t.Fatalf("expected awaiting_approval, got %s", created.State)
	}

	prompts := f.messenger.Prompts()
	if len(prompts) != 1 {
		t.Fatalf("expected one prompt, got %d", len(prompts))
	}
	approval, err := f.store.ApprovalByRequest(t.Context(), created.ID)
	if err != nil || approval == nil {
		t.Fatalf("ApprovalByRequest failed: %v", err)
	}

	approve := `{"message_handle":"` + approval.MessageHandle + `","outcome":"approved","decider_id":"admin"}`
	w = serve(t, h, http.MethodPost, "/api/approvals", approve)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	resp := decodeBody[api.ApprovalResponse](t, w)
	if resp.Request.State != string(ledger.StateDownloading) || resp.AlreadyDecided {
		t.Fatalf("unexpected approval response: %+v", resp)
	}

	w = serve(t, h, http.MethodPost, "/api/approvals", approve)
	if w.Code != http.StatusOK {
		t.Fatalf("expected duplicate delivery to return 200, got %d", w.Code)
	}
	if dup := decodeBody[api.ApprovalResponse](t, w); !dup.AlreadyDecided || dup.Request.ID != created.ID {
		t.Fatalf("expected already_decided for duplicate delivery, got %+v", dup)
	}
	if got := len(f.torrents.Submitted()); got != 1 {
		t.Fatalf("expected one submission, got %d", got)
	}

	w = serve(t, h, http.MethodGet, "/api/requests/"+created.ID, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	detail := decodeBody[api.RequestDetail](t, w)
	if detail.Handle == nil || detail.Handle.Hash != "h1" {
		t.Fatalf("expected bound handle h1, got %+v", detail.Handle)
	}
}

func TestAPIFailureStatusCodes(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.api.handler

	if w := serve(t, h, http.MethodPost, "/api/requests", createBody); w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", w.Code)
	}

	cases := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{"duplicate request", http.MethodPost, "/api/requests", createBody, http.StatusConflict},
		{"missing title", http.MethodPost, "/api/requests", `{"user_id":"u","candidate":{"download_url":"magnet:?xt=1"}}`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/requests", `{"user":"u"}`, http.StatusBadRequest},
		{"malformed json", http.MethodPost, "/api/approvals", `{`, http.StatusBadRequest},
		{"bad outcome", http.MethodPost, "/api/approvals", `{"message_handle":"msg-1","outcome":"maybe","decider_id":"a"}`, http.StatusBadRequest},
		{"unknown handle", http.MethodPost, "/api/approvals", `{"message_handle":"nope","outcome":"approved","decider_id":"a"}`, http.StatusNotFound},
		{"unknown request", http.MethodGet, "/api/requests/missing", "", http.StatusNotFound},
		{"bad state filter", http.MethodGet, "/api/requests?state=bogus", "", http.StatusBadRequest},
		{"bad job filter", http.MethodGet, "/api/jobs?status=bogus", "", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/approvals", "", http.StatusMethodNotAllowed},
	}
	for _, tc := range cases {
		w := serve(t, h, tc.method, tc.target, tc.body)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, w.Code, w.Body.String())
		}
	}

	w := serve(t, h, http.MethodPost, "/api/requests", `{"user_id":"u","candidate":{"title":"X","download_url":"ftp://x"}}`)
	resp := decodeBody[api.ErrorResponse](t, w)
	if len(resp.Fields) != 1 || !strings.Contains(resp.Fields[0], "download_url") {
		t.Fatalf("expected download_url field error, got %+v", resp)
	}
}

func TestAPIListsRequestsAndStatus(t *testing.T) {
	f := newFixture(t)
	h := f.daemon.api.handler
	testsupport.NewRequest(t, f.store, "user-1", "Dune")
	testsupport.Downloading(t, f.store, "user-2", "Emma", "feed01")

	w := serve(t, h, http.MethodGet, "/api/requests?state=downloading", "")
	list := decodeBody[api.RequestListResponse](t, w)
	if len(list.Requests) != 1 || list.Requests[0].Candidate.Title != "Emma" {
		t.Fatalf("unexpected filtered list: %+v", list.Requests)
	}

	w = serve(t, h, http.MethodGet, "/api/status", "")
	status := decodeBody[api.DaemonStatus](t, w)
	if status.Running {
		t.Fatal("expected daemon to report not running before Start")
	}
	if status.RequestCounts["created"] != 1 || status.RequestCounts["downloading"] != 1 {
		t.Fatalf("unexpected request counts: %v", status.RequestCounts)
	}

	w = serve(t, h, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "librarian_api_requests_total") {
		t.Fatalf("expected metrics exposition, got %d", w.Code)
	}
}

func TestAPIRequiresBearerToken(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.APIToken = "s3cret"
	srv := newAPIServer(f.cfg, f.daemon, nil)

	if w := serve(t, srv.handler, http.MethodGet, "/api/status", ""); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	if w := serve(t, srv.handler, http.MethodGet, "/api/status", "", "Authorization", "Bearer wrong"); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", w.Code)
	}
	if w := serve(t, srv.handler, http.MethodGet, "/api/status", "", "Authorization", "Bearer s3cret"); w.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", w.Code)
	}
}

func TestAPIRateLimit(t *testing.T) {
	f := newFixture(t)
	cfg := *f.cfg
	cfg.API = config.API{RateLimit: 0.001, RateBurst: 2}
	srv := newAPIServer(&cfg, f.daemon, nil)

	for i := range 2 {
		if w := serve(t, srv.handler, http.MethodGet, "/api/status", ""); w.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, w.Code)
		}
	}
	w := serve(t, srv.handler, http.MethodGet, "/api/status", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once the burst is spent, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}
