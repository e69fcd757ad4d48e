package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arencloud/stratus/internal/config"
	"github.com/arencloud/stratus/internal/inference"
	"github.com/arencloud/stratus/internal/logging"
	"github.com/arencloud/stratus/internal/models"
	"github.com/arencloud/stratus/internal/objectstore"
	"github.com/arencloud/stratus/internal/rds"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// setupTestServer spins up the full dispatcher over temp storage, a sqlite
// registry, the file database backend, and a canned inference backend.
func setupTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	tmp := t.TempDir()
	logger := logging.New("test")

	store, err := objectstore.New(filepath.Join(tmp, "s3"))
	if err != nil {
		t.Fatal(err)
	}

	gdb, err := gorm.Open(sqlite.Open(filepath.Join(tmp, "registry.db")), &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		t.Fatal(err)
	}
	if err := gdb.AutoMigrate(&models.DBInstance{}); err != nil {
		t.Fatal(err)
	}
	orch := rds.NewOrchestrator(gdb, rds.NewPortAllocator(5433), rds.NewFileBackend(filepath.Join(tmp, "rds"), logger), logger)

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			w.Write([]byte(`{"message":{"role":"assistant","content":"canned reply"},"prompt_eval_count":3,"eval_count":5}`))
		case "/api/generate":
			w.Write([]byte(`{"response":"canned completion","prompt_eval_count":2}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ollama.Close)
	proxy := inference.NewProxy(ollama.URL+"/api/chat", ollama.URL+"/api/generate", "test-model", logger)

	ts := httptest.NewServer(NewServer(&config.Config{}, logger, store, orch, proxy).Router())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string, hdr map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, strings.NewReader(body))
	if err != nil {
		t.Fatal(err)
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp
}

func readAll(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status %d", resp.StatusCode)
	}
	var out struct {
		Status   string   `json:"status"`
		Services []string `json:"services"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if out.Status != "ok" || len(out.Services) != 3 {
		t.Fatalf("unexpected health payload: %+v", out)
	}
}

func TestRootStatusVersusSDKListBuckets(t *testing.T) {
	ts := setupTestServer(t)

	// plain browser-style GET gets the status page
	resp := do(t, http.MethodGet, ts.URL+"/", "", nil)
	body := readAll(t, resp)
	if resp.StatusCode != 200 || !strings.Contains(body, `"status":"running"`) {
		t.Fatalf("status probe: %d %s", resp.StatusCode, body)
	}

	// an SDK user agent gets the bucket listing instead
	resp = do(t, http.MethodGet, ts.URL+"/", "", map[string]string{"User-Agent": "aws-sdk-go/1.0"})
	body = readAll(t, resp)
	if !strings.Contains(body, "<ListAllMyBucketsResult") || !strings.Contains(body, "mock-owner") {
		t.Fatalf("sdk list buckets: %s", body)
	}

	// a v4 signature works the same with any user agent
	resp = do(t, http.MethodGet, ts.URL+"/", "", map[string]string{"Authorization": "AWS4-HMAC-SHA256 Credential=x"})
	body = readAll(t, resp)
	if !strings.Contains(body, "<ListAllMyBucketsResult") {
		t.Fatalf("signed list buckets: %s", body)
	}
}

func TestObjectStorageLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	resp := do(t, http.MethodPut, ts.URL+"/bucket1", "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("create bucket: %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = do(t, http.MethodPut, ts.URL+"/bucket1/hello.txt", "hi", nil)
	if resp.StatusCode != 200 || resp.Header.Get("ETag") == "" {
		t.Fatalf("put object: %d etag=%q", resp.StatusCode, resp.Header.Get("ETag"))
	}
	resp.Body.Close()

	resp = do(t, http.MethodGet, ts.URL+"/bucket1/hello.txt", "", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("get object: %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Fatalf("content type: %q", ct)
	}
	if got := readAll(t, resp); got != "hi" {
		t.Fatalf("body: %q", got)
	}

	resp = do(t, http.MethodHead, ts.URL+"/bucket1/hello.txt", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 200 || resp.Header.Get("Content-Length") != "2" {
		t.Fatalf("head: %d len=%q", resp.StatusCode, resp.Header.Get("Content-Length"))
	}

	// listing reflects the nested key layout with forward slashes
	resp = do(t, http.MethodPut, ts.URL+"/bucket1/dir/nested.bin", "xx", nil)
	resp.Body.Close()
	resp = do(t, http.MethodGet, ts.URL+"/bucket1?prefix=dir/", "", nil)
	body := readAll(t, resp)
	if !strings.Contains(body, "<Key>dir/nested.bin</Key>") || strings.Contains(body, "hello.txt") {
		t.Fatalf("prefixed listing: %s", body)
	}

	// a populated bucket refuses deletion
	resp = do(t, http.MethodDelete, ts.URL+"/bucket1", "", nil)
	body = readAll(t, resp)
	if resp.StatusCode != 409 || !strings.Contains(body, "BucketNotEmpty") {
		t.Fatalf("non-empty delete: %d %s", resp.StatusCode, body)
	}

	resp = do(t, http.MethodDelete, ts.URL+"/bucket1/hello.txt", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("delete object: %d", resp.StatusCode)
	}
	resp = do(t, http.MethodDelete, ts.URL+"/bucket1/dir/nested.bin", "", nil)
	resp.Body.Close()
	resp = do(t, http.MethodDelete, ts.URL+"/bucket1", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("delete bucket: %d", resp.StatusCode)
	}
}

func TestObjectStorageErrors(t *testing.T) {
	ts := setupTestServer(t)

	resp := do(t, http.MethodDelete, ts.URL+"/ghost", "", nil)
	body := readAll(t, resp)
	if resp.StatusCode != 404 || !strings.Contains(body, "NoSuchBucket") {
		t.Fatalf("delete unknown bucket: %d %s", resp.StatusCode, body)
	}

	do(t, http.MethodPut, ts.URL+"/b", "", nil).Body.Close()
	resp = do(t, http.MethodGet, ts.URL+"/b/missing.txt", "", nil)
	body = readAll(t, resp)
	if resp.StatusCode != 404 || !strings.Contains(body, "NoSuchKey") {
		t.Fatalf("get missing key: %d %s", resp.StatusCode, body)
	}

	// deleting an absent object is still a success
	resp = do(t, http.MethodDelete, ts.URL+"/b/missing.txt", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 204 {
		t.Fatalf("idempotent delete: %d", resp.StatusCode)
	}

	// reserved names never resolve as buckets
	resp = do(t, http.MethodPut, ts.URL+"/model", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("reserved bucket name: %d", resp.StatusCode)
	}
}

func rdsAction(t *testing.T, ts *httptest.Server, params url.Values) (*http.Response, string) {
	t.Helper()
	resp := do(t, http.MethodPost, ts.URL+"/", params.Encode(), map[string]string{
		"Content-Type": "application/x-www-form-urlencoded",
	})
	return resp, readAll(t, resp)
}

func TestDatabaseInstanceLifecycle(t *testing.T) {
	ts := setupTestServer(t)

	resp, body := rdsAction(t, ts, url.Values{
		"Action":               {"CreateDBInstance"},
		"DBInstanceIdentifier": {"db1"},
		"Engine":               {"postgres"},
		"MasterUsername":       {"admin"},
		"MasterUserPassword":   {"pw"},
		"DBName":               {"app"},
	})
	if resp.StatusCode != 200 {
		t.Fatalf("create: %d %s", resp.StatusCode, body)
	}
	for _, want := range []string{"<CreateDBInstanceResponse", "<DBInstanceIdentifier>db1</DBInstanceIdentifier>", "<Port>5433</Port>", "<Address>localhost</Address>", "<DBInstanceStatus>available</DBInstanceStatus>", "<RequestId>"} {
		if !strings.Contains(body, want) {
			t.Fatalf("create response missing %q: %s", want, body)
		}
	}

	resp, body = rdsAction(t, ts, url.Values{"Action": {"CreateDBInstance"}, "DBInstanceIdentifier": {"db1"}})
	if resp.StatusCode != 400 || !strings.Contains(body, "DBInstanceAlreadyExists") {
		t.Fatalf("duplicate create: %d %s", resp.StatusCode, body)
	}

	resp, body = rdsAction(t, ts, url.Values{"Action": {"DescribeDBInstances"}})
	if resp.StatusCode != 200 || !strings.Contains(body, "<DescribeDBInstancesResponse") || !strings.Contains(body, "db1") {
		t.Fatalf("describe all: %d %s", resp.StatusCode, body)
	}

	resp, body = rdsAction(t, ts, url.Values{"Action": {"DeleteDBInstance"}, "DBInstanceIdentifier": {"db1"}})
	if resp.StatusCode != 200 || !strings.Contains(body, "<DBInstanceStatus>deleted</DBInstanceStatus>") {
		t.Fatalf("delete: %d %s", resp.StatusCode, body)
	}

	resp, body = rdsAction(t, ts, url.Values{"Action": {"DescribeDBInstances"}, "DBInstanceIdentifier": {"db1"}})
	if resp.StatusCode != 404 || !strings.Contains(body, "DBInstanceNotFound") {
		t.Fatalf("describe deleted: %d %s", resp.StatusCode, body)
	}
}

func TestDatabaseActionErrors(t *testing.T) {
	ts := setupTestServer(t)

	resp, body := rdsAction(t, ts, url.Values{"Action": {"RebootDBInstance"}})
	if resp.StatusCode != 400 || !strings.Contains(body, "InvalidAction") {
		t.Fatalf("unknown action: %d %s", resp.StatusCode, body)
	}

	resp, body = rdsAction(t, ts, url.Values{"Action": {"CreateDBInstance"}, "DBInstanceIdentifier": {"db1"}, "Engine": {"oracle"}})
	if resp.StatusCode != 400 || !strings.Contains(body, "InvalidParameterValue") || !strings.Contains(body, "oracle") {
		t.Fatalf("unsupported engine: %d %s", resp.StatusCode, body)
	}

	// a root POST without a form action is not a database request
	resp = do(t, http.MethodPost, ts.URL+"/", `{"foo":1}`, map[string]string{"Content-Type": "application/json"})
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("non-form root post: %d", resp.StatusCode)
	}
}

func TestModelInvoke(t *testing.T) {
	ts := setupTestServer(t)

	resp := do(t, http.MethodPost, ts.URL+"/model/anthropic.claude-v2/invoke",
		`{"messages":[{"role":"user","content":"hi"}]}`, map[string]string{"Content-Type": "application/json"})
	if resp.StatusCode != 200 {
		t.Fatalf("invoke: %d", resp.StatusCode)
	}
	var out struct {
		Output struct {
			Message struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"message"`
		} `json:"output"`
		Usage struct {
			InputTokens  int `json:"inputTokens"`
			OutputTokens int `json:"outputTokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if out.Output.Message.Content[0].Text != "canned reply" || out.Usage.OutputTokens != 5 {
		t.Fatalf("invoke payload: %+v", out)
	}

	// invoke is POST-only; a GET falls through to the object catch-all and the
	// reserved-name guard rejects it
	resp = do(t, http.MethodGet, ts.URL+"/model/x/invoke", "", nil)
	resp.Body.Close()
	if resp.StatusCode != 404 {
		t.Fatalf("invoke wrong method: %d", resp.StatusCode)
	}
}

func TestRequestIDHeader(t *testing.T) {
	ts := setupTestServer(t)
	resp := do(t, http.MethodGet, ts.URL+"/health", "", nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("missing request id header")
	}
}
