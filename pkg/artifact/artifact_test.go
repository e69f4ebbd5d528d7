package artifact

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/AIINA17/Livekit-Biometric/pkg/antispoof"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

type apiError struct{ code string }

func (e *apiError) Error() string                 { return e.code }
func (e *apiError) ErrorCode() string             { return e.code }
func (e *apiError) ErrorMessage() string          { return e.code }
func (e *apiError) ErrorFault() smithy.ErrorFault { return smithy.FaultClient }

// mockS3 is an in-memory bucket that pages List results two at a time.
type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	getErr  error
}

func newMockS3() *mockS3 { return &mockS3{objects: make(map[string][]byte)} }

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[*in.Key]
	if !ok {
		return nil, &apiError{code: "NoSuchKey"}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	m.mu.Lock()
	var keys []string
	for k := range m.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			keys = append(keys, k)
		}
	}
	m.mu.Unlock()
	sort.Strings(keys)

	start := 0
	if in.ContinuationToken != nil {
		start = slices.Index(keys, *in.ContinuationToken)
	}
	end := min(start+2, len(keys))
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(keys))}
	for _, k := range keys[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	if end < len(keys) {
		out.NextContinuationToken = aws.String(keys[end])
	}
	return out, nil
}

func stores(t *testing.T) map[string]Store {
	t.Helper()
	local, err := NewLocal(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return map[string]Store{
		"local": local,
		"s3":    NewS3(newMockS3(), "bucket", "/calibration/"),
	}
}

func TestSaveLoadModel(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			want := antispoof.DefaultModel()
			if err := Save(ctx, s, "spoof/model.yaml", want); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load[antispoof.Model](ctx, s, "spoof/model.yaml")
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if !slices.Equal(got.Means, want.Means) || !slices.Equal(got.Weights, want.Weights) || got.Bias != want.Bias {
				t.Errorf("Load = %+v, want %+v", got, want)
			}
			if _, err := Load[antispoof.Model](ctx, s, "spoof/missing.yaml"); !errors.Is(err, ErrNotFound) {
				t.Errorf("missing: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, n := range []string{"spoof/b.yaml", "spoof/a.yaml", "eer/x.yaml", "spoof/c.yaml", "spoof/d.yaml"} {
				if err := s.Put(ctx, n, []byte("v: 1\n")); err != nil {
					t.Fatal(err)
				}
			}
			got, err := s.List(ctx, "spoof/")
			if err != nil {
				t.Fatal(err)
			}
			want := []string{"spoof/a.yaml", "spoof/b.yaml", "spoof/c.yaml", "spoof/d.yaml"}
			if !slices.Equal(got, want) {
				t.Errorf("List = %v, want %v", got, want)
			}
		})
	}
}

func TestInvalidName(t *testing.T) {
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			for _, n := range []string{"", "../escape.yaml", "a//b", "/abs"} {
				if err := s.Put(context.Background(), n, nil); err == nil {
					t.Errorf("Put(%q) should fail", n)
				}
			}
		})
	}
}

func TestS3GetError(t *testing.T) {
	mock := newMockS3()
	mock.getErr = &apiError{code: "AccessDenied"}
	_, err := NewS3(mock, "bucket", "").Get(context.Background(), "x.yaml")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want a non-NotFound error", err)
	}
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		in   string
		want Location
		err  bool
	}{
		{"s3://bucket/a/b/", Location{Bucket: "bucket", Prefix: "a/b"}, false},
		{"s3://bucket", Location{Bucket: "bucket"}, false},
		{"./artifacts", Location{Dir: "./artifacts"}, false},
		{"s3:///x", Location{}, true},
		{"", Location{}, true},
	}
	for _, tt := range tests {
		got, err := ParseLocation(tt.in)
		if (err != nil) != tt.err {
			t.Errorf("ParseLocation(%q) err = %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLocation(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}
