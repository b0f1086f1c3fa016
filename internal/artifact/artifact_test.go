package artifact

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/cwbudde/algo-restyle/session"
)

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Bucket+":"+*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[*in.Bucket+":"+*in.Key]; !ok {
		return nil, &apiError{code: "NotFound"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func fakeResult(t *testing.T, withBest bool) *session.Result {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}
	res := &session.Result{
		ID:         "sess-1",
		OutputDir:  dir,
		MelodyPath: write("melody_base.wav", "base"),
	}
	write("report.yaml", "outcome: best\n")
	if withBest {
		res.Best = &session.AttemptRecord{
			Attempt:       2,
			MelodyPath:    write("melody_attempt_2.wav", "mel"),
			GeneratedPath: write("generated_attempt_2.wav", "gen"),
		}
	}
	return res
}

func TestPublishLocal(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	written, err := Publish(ctx, store, fakeResult(t, true))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(written) != 4 {
		t.Fatalf("written = %v", written)
	}
	ok, err := store.Exists(ctx, "sess-1/generated_attempt_2.wav")
	if err != nil || !ok {
		t.Fatalf("generated clip not published: %v", err)
	}
	data, err := os.ReadFile(store.resolve("sess-1/generated_attempt_2.wav"))
	if err != nil || string(data) != "gen" {
		t.Fatalf("content = %q, %v", data, err)
	}
	if ok, _ := store.Exists(ctx, "sess-1/missing.wav"); ok {
		t.Fatal("missing file reported as existing")
	}
}

func TestPublishWithoutBest(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	written, err := Publish(context.Background(), store, fakeResult(t, false))
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(written) != 2 {
		t.Fatalf("written = %v", written)
	}
}

func TestPublishS3(t *testing.T) {
	ctx := context.Background()
	mock := &mockS3{objects: map[string][]byte{}}
	store := NewS3(mock, "bucket", "restyle")
	if _, err := Publish(ctx, store, fakeResult(t, true)); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !bytes.Equal(mock.objects["bucket:restyle/sess-1/melody_attempt_2.wav"], []byte("mel")) {
		t.Fatalf("objects = %v", mock.objects)
	}
	ok, err := store.Exists(ctx, "sess-1/report.yaml")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
	ok, err = store.Exists(ctx, "sess-1/nope")
	if err != nil || ok {
		t.Fatalf("missing object: %v, %v", ok, err)
	}
}

func TestNewS3FromConfigRequiresBucketAndCredentials(t *testing.T) {
	if _, err := NewS3FromConfig(S3Config{}); err == nil {
		t.Fatal("missing bucket must fail")
	}
	if _, err := NewS3FromConfig(S3Config{Bucket: "b"}); err == nil {
		t.Fatal("missing credentials must fail")
	}
	if _, err := NewS3FromConfig(S3Config{Bucket: "b", Endpoint: "http://localhost:9000", AccessKeyID: "k", SecretAccessKey: "s"}); err != nil {
		t.Fatalf("NewS3FromConfig: %v", err)
	}
}
