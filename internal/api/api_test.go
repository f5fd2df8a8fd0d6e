package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/starford/limen/internal/docservice"
	"github.com/starford/limen/internal/store"
	"github.com/starford/limen/internal/testutil"
)

const overlap = `<s|<a|John <b|loves|a> Mary|b>|s>`

// testEnv sets up a temp corpus, SQLite store, service, and router for testing.
// An empty authToken means disabled mode.
func testEnv(t *testing.T, authToken string) (*docservice.Service, http.Handler) {
	t.Helper()
	return testEnvWithSSE(t, authToken != "", authToken, nil)
}

func testEnvWithSSE(t *testing.T, authEnabled bool, token string, sseHandler http.Handler) (*docservice.Service, http.Handler) {
	t.Helper()
	_, files := testutil.TestCorpus(t)
	db := testutil.TestDB(t)
	ix := store.NewIndexer(db, true, testutil.Logger())
	svc := docservice.NewService(files, db, ix, testutil.Logger())
	return svc, NewRouter(svc, authEnabled, token, sseHandler)
}

func do(t *testing.T, router http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rd)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func create(t *testing.T, router http.Handler, path, source string) DocumentResponse {
	t.Helper()
	w := do(t, router, http.MethodPost, "/documents", CreateDocumentRequest{Path: path, Source: source})
	if w.Code != http.StatusCreated {
		t.Fatalf("create %s status = %d, body = %s", path, w.Code, w.Body.String())
	}
	var resp DocumentResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	return resp
}

func TestCreateAndGetDocument(t *testing.T) {
	_, router := testEnv(t, "")
	created := create(t, router, "john.texmecs", overlap)
	if created.Document.ID == "" || created.Document.MarkupCount != 3 || !created.Created {
		t.Fatalf("created = %+v", created)
	}

	w := do(t, router, http.MethodGet, "/documents/"+created.Document.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	var doc DocumentDetail
	_ = json.Unmarshal(w.Body.Bytes(), &doc)
	if doc.Path != "john.texmecs" || doc.Text != "John loves Mary" || doc.Notation != "texmecs" {
		t.Errorf("doc = %+v", doc)
	}
}

func TestCreateDuplicateAndOverwrite(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "dup.tagml", "[a>one<a]")

	w := do(t, router, http.MethodPost, "/documents", CreateDocumentRequest{Path: "dup.tagml", Source: "[a>two<a]"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate create = %d, want 409", w.Code)
	}
	w = do(t, router, http.MethodPost, "/documents", CreateDocumentRequest{Path: "dup.tagml", Source: "[a>two<a]", Overwrite: true})
	if w.Code != http.StatusOK {
		t.Errorf("overwrite = %d, want 200: %s", w.Code, w.Body.String())
	}
}

func TestCreateValidation(t *testing.T) {
	_, router := testEnv(t, "")
	cases := []struct {
		name string
		body any
		want int
	}{
		{"missing source", CreateDocumentRequest{Path: "a.tagml"}, http.StatusBadRequest},
		{"not json", "[a>x<a]", http.StatusBadRequest},
		{"unclosed", CreateDocumentRequest{Path: "a.tagml", Source: "[a>x"}, http.StatusUnprocessableEntity},
		{"bad extension", CreateDocumentRequest{Path: "a.md", Source: "[a>x<a]"}, http.StatusUnprocessableEntity},
		{"traversal", CreateDocumentRequest{Path: "../a.tagml", Source: "[a>x<a]"}, http.StatusUnprocessableEntity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := do(t, router, http.MethodPost, "/documents", tc.body); w.Code != tc.want {
				t.Errorf("status = %d, want %d: %s", w.Code, tc.want, w.Body.String())
			}
		})
	}
}

func TestMarkupsAndExport(t *testing.T) {
	_, router := testEnv(t, "")
	id := create(t, router, "john.texmecs", overlap).Document.ID

	w := do(t, router, http.MethodGet, "/documents/"+id+"/markups", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("markups status = %d", w.Code)
	}
	var resp MarkupListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Markups) != 3 {
		t.Fatalf("markups = %+v", resp.Markups)
	}
	for _, m := range resp.Markups {
		if m.Tag == "b" && (m.Text != "loves Mary" || len(m.Layers) != 1 || m.Layers[0] != "overlap-1") {
			t.Errorf("b = %+v", m)
		}
	}

	w = do(t, router, http.MethodGet, "/documents/"+id+"/tagml", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("export status = %d", w.Code)
	}
	if got, want := w.Body.String(), "[s>[a>John [b|+overlap-1>loves<a] Mary<b|overlap-1]<s]"; got != want {
		t.Errorf("export = %q, want %q", got, want)
	}
}

func TestDeleteDocument(t *testing.T) {
	_, router := testEnv(t, "")
	id := create(t, router, "del.lmnl", "[p}bye{p]").Document.ID

	if w := do(t, router, http.MethodDelete, "/documents/"+id, nil); w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}
	if w := do(t, router, http.MethodGet, "/documents/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("get after delete = %d, want 404", w.Code)
	}
	if w := do(t, router, http.MethodDelete, "/documents/"+id, nil); w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
}

func TestListDocuments(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "a.tagml", "[a>a<a]")
	create(t, router, "b.lmnl", "[b}b{b]")

	w := do(t, router, http.MethodGet, "/documents?limit=10", nil)
	var resp DocumentListResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 2 || len(resp.Documents) != 2 {
		t.Errorf("list = %+v", resp)
	}

	w = do(t, router, http.MethodGet, "/documents?notation=lmnl", nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Documents[0].Path != "b.lmnl" {
		t.Errorf("filtered = %+v", resp)
	}

	if w := do(t, router, http.MethodGet, "/documents?notation=xml", nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown notation = %d, want 422", w.Code)
	}
}

func TestSearchEndpoint(t *testing.T) {
	_, router := testEnv(t, "")
	create(t, router, "john.texmecs", overlap)

	w := do(t, router, http.MethodGet, "/search?tag=b", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d", w.Code)
	}
	var resp SearchResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 1 || resp.Results[0].Text != "loves Mary" || resp.Results[0].Path != "john.texmecs" {
		t.Errorf("results = %+v", resp.Results)
	}

	w = do(t, router, http.MethodGet, "/search?q="+url.QueryEscape("John"), nil)
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if len(resp.Results) != 2 {
		t.Errorf("text results = %+v", resp.Results)
	}

	if w := do(t, router, http.MethodGet, "/search", nil); w.Code != http.StatusBadRequest {
		t.Errorf("missing query = %d, want 400", w.Code)
	}
}

func TestGetDocument_NotFound(t *testing.T) {
	_, router := testEnv(t, "")
	for _, p := range []string{"/documents/nope", "/documents/nope/markups", "/documents/nope/tagml"} {
		if w := do(t, router, http.MethodGet, p, nil); w.Code != http.StatusNotFound {
			t.Errorf("%s = %d, want 404", p, w.Code)
		}
	}
}

func TestAuthMiddleware_ValidToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	body, _ := json.Marshal(CreateDocumentRequest{Path: "auth.tagml", Source: "[a>x<a]"})
	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer secret123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Errorf("authed create = %d, want 201", w.Code)
	}
}

func TestAuthMiddleware_MissingOrWrongToken(t *testing.T) {
	_, router := testEnv(t, "secret123")
	for _, header := range []string{"", "Bearer wrong", "Basic secret123", "secret123"} {
		req := httptest.NewRequest(http.MethodGet, "/documents", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("header %q = %d, want 401", header, w.Code)
		}
	}
}

func TestAuthMiddleware_Disabled(t *testing.T) {
	_, router := testEnv(t, "")
	if w := do(t, router, http.MethodGet, "/documents", nil); w.Code != http.StatusOK {
		t.Errorf("no auth = %d, want 200", w.Code)
	}
}

// SSE endpoint auth tests.

func blockingSSE() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-r.Context().Done()
	})
}

func TestSSEEvents_AuthProtected(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "secret", blockingSSE())
	req := httptest.NewRequest(http.MethodGet, "/events", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("SSE no auth = %d, want 401", w.Code)
	}
}

func TestSSEEvents_ValidToken(t *testing.T) {
	_, router := testEnvWithSSE(t, true, "tok", blockingSSE())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	req.Header.Set("Authorization", "Bearer tok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("SSE with valid token = %d, want 200", w.Code)
	}
}

// Upload tests.

func uploadFile(t *testing.T, router http.Handler, filename string, content []byte, fields map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		_ = mw.WriteField(k, v)
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = io.Copy(part, bytes.NewReader(content))
	mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestUploadDocument(t *testing.T) {
	_, router := testEnv(t, "")
	w := uploadFile(t, router, "frost.lmnl", []byte("[l}Whose woods{l]"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DocumentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Document.Path != "frost.lmnl" || resp.Document.Notation != "lmnl" {
		t.Errorf("uploaded = %+v", resp.Document)
	}

	w = uploadFile(t, router, "ignored.tagml", []byte("[s>x<s]"), map[string]string{"path": "poems/x.tagml"})
	if w.Code != http.StatusCreated {
		t.Fatalf("upload with path = %d, body = %s", w.Code, w.Body.String())
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Document.Path != "poems/x.tagml" {
		t.Errorf("path = %q", resp.Document.Path)
	}
}

func TestUploadDocument_StripsDirectories(t *testing.T) {
	_, router := testEnv(t, "")
	w := uploadFile(t, router, "../escape.tagml", []byte("[a>x<a]"), nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("upload status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp DocumentResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Document.Path != "escape.tagml" {
		t.Errorf("path = %q, want escape.tagml", resp.Document.Path)
	}
}

func TestUploadDocument_Rejected(t *testing.T) {
	_, router := testEnv(t, "")
	if w := uploadFile(t, router, "notes.md", []byte("# hi"), nil); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("markdown upload = %d, want 422", w.Code)
	}
	if w := uploadFile(t, router, "x.tagml", []byte("[a>x"), map[string]string{"path": "../x.tagml"}); w.Code != http.StatusUnprocessableEntity {
		t.Errorf("traversal path = %d, want 422", w.Code)
	}
}

func TestSafeName(t *testing.T) {
	for name, ok := range map[string]bool{
		"a.tagml":      true,
		"":             false,
		"..":           false,
		"dir/a.tagml":  false,
		`dir\a.tagml`: false,
	} {
		if _, err := safeName(name); (err == nil) != ok {
			t.Errorf("safeName(%q) err = %v", name, err)
		}
	}
}
