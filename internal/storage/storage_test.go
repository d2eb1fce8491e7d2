package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/zulandar/proctor/internal/config"
)

func TestRecordingKey(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"video/webm", "recordings/iv-1/recording.webm"},
		{"audio/webm;codecs=opus", "recordings/iv-1/recording.webm"},
		{"Video/MP4", "recordings/iv-1/recording.mp4"},
		{"application/octet-stream", "recordings/iv-1/recording.bin"},
		{"", "recordings/iv-1/recording.bin"},
	}
	for _, tt := range tests {
		if got := RecordingKey("recordings", "iv-1", tt.contentType); got != tt.want {
			t.Errorf("RecordingKey(%q) = %q, want %q", tt.contentType, got, tt.want)
		}
	}
}

func TestLocalStore_Put(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "")

	ref, err := store.Put(context.Background(), "recordings/iv-1/recording.webm", []byte("media"), "video/webm")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !strings.HasPrefix(ref, "file://") || !strings.HasSuffix(ref, "recordings/iv-1/recording.webm") {
		t.Errorf("ref = %q", ref)
	}
	got, err := os.ReadFile(filepath.Join(dir, "recordings", "iv-1", "recording.webm"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(got) != "media" {
		t.Errorf("contents = %q", got)
	}

	// Overwrite keeps one object.
	if _, err := store.Put(context.Background(), "recordings/iv-1/recording.webm", []byte("v2"), "video/webm"); err != nil {
		t.Fatalf("second Put: %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(dir, "recordings", "iv-1", "recording.webm"))
	if string(got) != "v2" {
		t.Errorf("contents after overwrite = %q", got)
	}
}

func TestLocalStore_ConcurrentPutSameKey(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalStore(dir, "")
	const writers = 16
	const size = 64 << 10

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			payload := []byte(strings.Repeat(string(rune('a'+i)), size))
			_, errs[i] = store.Put(context.Background(), "recordings/iv-1/recording.webm", payload, "video/webm")
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Errorf("writer %d: %v", i, err)
		}
	}

	got, err := os.ReadFile(filepath.Join(dir, "recordings", "iv-1", "recording.webm"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(got) != size || strings.Trim(string(got), string(got[:1])) != "" {
		t.Errorf("object is not one writer's payload: len=%d", len(got))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "recordings", "iv-1"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != "recording.webm" {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory holds %v, want only recording.webm", names)
	}
}

func TestLocalStore_BaseURL(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "https://media.example.com/")
	ref, err := store.Put(context.Background(), "a/b.webm", []byte("x"), "")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "https://media.example.com/a/b.webm" {
		t.Errorf("ref = %q", ref)
	}
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store := NewLocalStore(t.TempDir(), "")
	for _, key := range []string{"", "../etc/passwd", "/abs/path", "a/../../b"} {
		if _, err := store.Put(context.Background(), key, []byte("x"), ""); err == nil {
			t.Errorf("Put(%q) succeeded, want error", key)
		}
	}
}

type fakeS3 struct {
	input *s3.PutObjectInput
	body  string
	err   error
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = in
	b, _ := io.ReadAll(in.Body)
	f.body = string(b)
	if f.err != nil {
		return nil, f.err
	}
	return &s3.PutObjectOutput{}, nil
}

func TestS3Store_Put(t *testing.T) {
	fake := &fakeS3{}
	store := &S3Store{client: fake, bucket: "recordings-bucket"}

	ref, err := store.Put(context.Background(), "recordings/iv-1/recording.webm", []byte("media"), "video/webm")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if ref != "s3://recordings-bucket/recordings/iv-1/recording.webm" {
		t.Errorf("ref = %q", ref)
	}
	if aws.ToString(fake.input.Bucket) != "recordings-bucket" || aws.ToString(fake.input.ContentType) != "video/webm" {
		t.Errorf("input = %+v", fake.input)
	}
	if fake.body != "media" {
		t.Errorf("body = %q", fake.body)
	}
}

func TestS3Store_PutError(t *testing.T) {
	store := &S3Store{client: &fakeS3{err: errors.New("access denied")}, bucket: "b"}
	_, err := store.Put(context.Background(), "k", []byte("x"), "")
	if err == nil || !strings.Contains(err.Error(), "storage: s3 put b/k") {
		t.Fatalf("err = %v", err)
	}
}

func TestNew_Backends(t *testing.T) {
	store, err := New(context.Background(), config.StorageConfig{Backend: "local", Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New local: %v", err)
	}
	if _, ok := store.(*LocalStore); !ok {
		t.Errorf("store = %T, want *LocalStore", store)
	}
	if _, err := New(context.Background(), config.StorageConfig{Backend: "ftp"}); err == nil {
		t.Error("expected error for unknown backend")
	}
}
