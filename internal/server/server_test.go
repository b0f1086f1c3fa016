package server

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cwbudde/algo-restyle/internal/wave"
	"github.com/cwbudde/algo-restyle/internal/wavio"
	"github.com/cwbudde/algo-restyle/session"
)

func init() { gin.SetMode(gin.TestMode) }

type fakeRunner struct {
	mu   sync.Mutex
	reqs []session.Request
}

func (f *fakeRunner) Run(_ context.Context, req session.Request) (*session.Result, error) {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	rec := session.AttemptRecord{SessionID: req.ID, Attempt: 1, Score: 80}
	return &session.Result{
		ID:          req.ID,
		Source:      req.Source,
		Target:      req.Target,
		Outcome:     session.OutcomeBest,
		Best:        &rec,
		BestScore:   80,
		BestAttempt: 1,
		Attempts:    []session.AttemptRecord{rec},
	}, nil
}

type fakeRecords struct{ recs map[string][]session.AttemptRecord }

func (f fakeRecords) List(_ context.Context, id string) ([]session.AttemptRecord, error) {
	return f.recs[id], nil
}

func (f fakeRecords) Sessions(context.Context) ([]string, error) {
	var ids []string
	for id := range f.recs {
		ids = append(ids, id)
	}
	return ids, nil
}

func writeWAV(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "src.wav")
	if err := wavio.WriteMono(p, wave.New(make([]float64, 3200), 32000)); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestServer(t *testing.T, opts Options) *Server {
	t.Helper()
	if opts.Runner == nil {
		opts.Runner = &fakeRunner{}
	}
	opts.UploadDir = t.TempDir()
	s, err := New(opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.Close)
	return s
}

func do(s *Server, method, path string, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	if body == nil {
		body = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func waitStatus(t *testing.T, s *Server, id string) Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if job, ok := s.job(id); ok && job.Status != StatusRunning {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("session did not finish")
	return Job{}
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, Options{})
	w := do(s, http.MethodGet, "/healthz", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "ok") {
		t.Fatalf("healthz = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSessionFromPath(t *testing.T) {
	runner := &fakeRunner{}
	done := make(chan *session.Result, 1)
	s := newTestServer(t, Options{
		Runner: runner,
		OnDone: func(_ context.Context, res *session.Result) { done <- res },
	})
	body, _ := json.Marshal(map[string]string{"source": writeWAV(t), "style": "jazz", "emotion": "happy"})
	w := do(s, http.MethodPost, "/v1/sessions", bytes.NewBuffer(body), "application/json")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct{ ID string }
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil || resp.ID == "" {
		t.Fatalf("bad response %s: %v", w.Body.String(), err)
	}
	job := waitStatus(t, s, resp.ID)
	if job.Status != StatusComplete || job.Result.BestScore != 80 {
		t.Fatalf("job = %+v", job)
	}
	if got := (<-done).ID; got != resp.ID {
		t.Fatalf("OnDone id = %q", got)
	}
	if runner.reqs[0].Target.Style != "jazz" || runner.reqs[0].ID != resp.ID {
		t.Fatalf("request = %+v", runner.reqs[0])
	}

	w = do(s, http.MethodGet, "/v1/sessions/"+resp.ID, nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"complete"`) {
		t.Fatalf("get = %d %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/v1/sessions/"+resp.ID+"/attempts", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":1`) {
		t.Fatalf("attempts = %d %s", w.Code, w.Body.String())
	}
}

func TestCreateSessionUpload(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(t, Options{Runner: runner})

	src, err := os.ReadFile(writeWAV(t))
	if err != nil {
		t.Fatal(err)
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	mw.WriteField("style", "rock")
	mw.WriteField("emotion", "angry")
	fw, err := mw.CreateFormFile("audio", "song.wav")
	if err != nil {
		t.Fatal(err)
	}
	fw.Write(src)
	mw.Close()

	w := do(s, http.MethodPost, "/v1/sessions", &body, mw.FormDataContentType())
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var resp struct{ ID string }
	json.Unmarshal(w.Body.Bytes(), &resp)
	waitStatus(t, s, resp.ID)
	if got := runner.reqs[0].Source; filepath.Dir(got) != s.opts.UploadDir || filepath.Ext(got) != ".wav" {
		t.Fatalf("upload stored at %q", got)
	}
}

func TestCreateSessionRejectsBadInput(t *testing.T) {
	s := newTestServer(t, Options{})
	cases := []struct {
		name string
		body map[string]string
		code int
	}{
		{"missing style", map[string]string{"source": "x.wav", "emotion": "sad"}, http.StatusBadRequest},
		{"missing source", map[string]string{"style": "pop", "emotion": "sad"}, http.StatusBadRequest},
		{"absent file", map[string]string{"source": filepath.Join(t.TempDir(), "nope.wav"), "style": "pop", "emotion": "sad"}, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, _ := json.Marshal(tc.body)
			w := do(s, http.MethodPost, "/v1/sessions", bytes.NewBuffer(b), "application/json")
			if w.Code != tc.code {
				t.Fatalf("status = %d, want %d: %s", w.Code, tc.code, w.Body.String())
			}
		})
	}
}

func TestAttemptsFromRecordStore(t *testing.T) {
	recs := fakeRecords{recs: map[string][]session.AttemptRecord{
		"old": {{SessionID: "old", Attempt: 1}, {SessionID: "old", Attempt: 2}},
	}}
	s := newTestServer(t, Options{Records: recs})
	w := do(s, http.MethodGet, "/v1/sessions/old/attempts", nil, "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"count":2`) {
		t.Fatalf("attempts = %d %s", w.Code, w.Body.String())
	}
	w = do(s, http.MethodGet, "/v1/sessions", nil, "")
	if !strings.Contains(w.Body.String(), `"old"`) {
		t.Fatalf("sessions = %s", w.Body.String())
	}
	w = do(s, http.MethodGet, "/v1/sessions/missing/attempts", nil, "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session = %d", w.Code)
	}
}
