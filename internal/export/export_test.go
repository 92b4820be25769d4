package export

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
)

func sample() model.ExamExport {
	return model.ExamExport{
		ExamID:      "exam-1",
		Title:       "Science Quiz",
		NumItems:    2,
		TotalPoints: 6,
		Results: []model.StudentResult{
			{Username: "juan", AttemptNumber: 1, Score: 1, FullyGraded: false},
		},
	}
}

func TestParseS3(t *testing.T) {
	tests := []struct {
		dest        string
		bucket, key string
		ok          bool
	}{
		{"s3://results/2026/quiz.json", "results", "2026/quiz.json", true},
		{"s3://results", "", "", false},
		{"s3:///quiz.json", "", "", false},
		{"results.json", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.dest, func(t *testing.T) {
			bucket, key, ok := ParseS3(tt.dest)
			if bucket != tt.bucket || key != tt.key || ok != tt.ok {
				t.Errorf("ParseS3(%q) = %q, %q, %v", tt.dest, bucket, key, ok)
			}
		})
	}
}

func TestWriteStdoutAndFile(t *testing.T) {
	ctx := context.Background()

	var buf bytes.Buffer
	if err := Write(ctx, "-", sample(), S3Config{}, &buf); err != nil {
		t.Fatalf("Write stdout: %v", err)
	}
	if !strings.HasSuffix(buf.String(), "}\n") {
		t.Error("stdout export should end with a newline")
	}

	path := filepath.Join(t.TempDir(), "out.json")
	if err := Write(ctx, path, sample(), S3Config{}, io.Discard); err != nil {
		t.Fatalf("Write file: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var got model.ExamExport
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Title != "Science Quiz" || len(got.Results) != 1 {
		t.Errorf("file export = %+v", got)
	}
}

func TestWriteS3(t *testing.T) {
	var (
		mu      sync.Mutex
		gotPath string
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.Error(w, "unexpected", http.StatusMethodNotAllowed)
			return
		}
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		gotPath, gotBody = r.URL.Path, body
		mu.Unlock()
		w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	cfg := S3Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minio",
		SecretKey: "minio123",
		Region:    "us-east-1",
	}
	if err := Write(context.Background(), "s3://results/quiz.json", sample(), cfg, io.Discard); err != nil {
		t.Fatalf("Write s3: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/results/quiz.json" {
		t.Errorf("path = %q, want /results/quiz.json", gotPath)
	}
	if !bytes.Contains(gotBody, []byte(`"exam_id": "exam-1"`)) {
		t.Errorf("uploaded body missing exam id: %s", gotBody)
	}
}

func TestWriteS3RequiresEndpoint(t *testing.T) {
	if err := Write(context.Background(), "s3://b/k", sample(), S3Config{}, io.Discard); err == nil {
		t.Error("expected error without endpoint")
	}
}
