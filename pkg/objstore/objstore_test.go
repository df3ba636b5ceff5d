package objstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

func TestEnsureBucket_CreatesMissing(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if err := EnsureBucket(ctx, m, "unprocessed-files"); err != nil {
		t.Fatalf("EnsureBucket: %v", err)
	}
	if err := m.HeadBucket(ctx, "unprocessed-files"); err != nil {
		t.Fatalf("bucket not created: %v", err)
	}
	// Second call finds the bucket and does nothing.
	if err := EnsureBucket(ctx, m, "unprocessed-files"); err != nil {
		t.Fatalf("EnsureBucket again: %v", err)
	}
}

type failingHead struct {
	*Memory
	err error
}

func (f failingHead) HeadBucket(context.Context, string) error { return f.err }

func TestEnsureBucket_PropagatesTransportErrors(t *testing.T) {
	boom := errors.New("connection refused")
	s := failingHead{Memory: NewMemory(), err: boom}

	err := EnsureBucket(context.Background(), s, "b")
	if !errors.Is(err, boom) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if err := s.Memory.HeadBucket(context.Background(), "b"); !IsNotFound(err) {
		t.Errorf("bucket should not have been created, HeadBucket = %v", err)
	}
}

func TestMemory_NotFound(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("b")

	if _, err := m.GetObject(ctx, "b", "missing"); !IsNotFound(err) {
		t.Errorf("GetObject missing key: %v", err)
	}
	if _, err := m.ListKeys(ctx, "nope", ""); !IsNotFound(err) {
		t.Errorf("ListKeys missing bucket: %v", err)
	}
	if err := m.CopyObject(ctx, "b", "missing", "b", "x"); !IsNotFound(err) {
		t.Errorf("CopyObject missing key: %v", err)
	}
}

func TestMemory_ListPrefixAndCopy(t *testing.T) {
	ctx := context.Background()
	m := NewMemory("src", "dst")
	for _, k := range []string{"2024/01/02/online.csv", "2024/01/01/online.csv", "2024/01/01/offline.csv"} {
		if err := m.PutObject(ctx, "src", k, []byte(k)); err != nil {
			t.Fatal(err)
		}
	}

	keys, err := m.ListKeys(ctx, "src", "2024/01/01/")
	if err != nil {
		t.Fatal(err)
	}
	if len(keys) != 2 || keys[0] != "2024/01/01/offline.csv" || keys[1] != "2024/01/01/online.csv" {
		t.Errorf("ListKeys = %v", keys)
	}

	if err := m.CopyObject(ctx, "src", "2024/01/02/online.csv", "dst", "2024/01/02/online.csv"); err != nil {
		t.Fatal(err)
	}
	body, err := m.GetObject(ctx, "dst", "2024/01/02/online.csv")
	if err != nil || string(body) != "2024/01/02/online.csv" {
		t.Errorf("copied body = %q, %v", body, err)
	}

	ok, err := ObjectExists(ctx, m, "dst", "2024/01/02/online.csv")
	if err != nil || !ok {
		t.Errorf("ObjectExists = %v, %v", ok, err)
	}
	ok, _ = ObjectExists(ctx, m, "dst", "2024/01/02/online")
	if ok {
		t.Error("ObjectExists matched a prefix of the key")
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"no such bucket", &types.NoSuchBucket{}, true},
		{"no such key", &types.NoSuchKey{}, true},
		{"head 404", &types.NotFound{}, true},
		{"generic api code", &smithy.GenericAPIError{Code: "NoSuchBucket"}, true},
		{"access denied", &smithy.GenericAPIError{Code: "AccessDenied"}, false},
		{"transport", errors.New("dial tcp: connection refused"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if IsNotFound(got) != tt.want {
				t.Errorf("IsNotFound(classify(%v)) = %v, want %v", tt.err, !tt.want, tt.want)
			}
			if !errors.Is(got, tt.err) {
				t.Errorf("classified error lost the original: %v", got)
			}
		})
	}
}

func TestCopySource(t *testing.T) {
	if got := copySource("unprocessed-files", "2024/01/01/online.csv"); got != "unprocessed-files/2024/01/01/online.csv" {
		t.Errorf("copySource = %q", got)
	}
	if got := copySource("b", "a b/c+d.csv"); got != "b/a%20b/c+d.csv" {
		t.Errorf("copySource escaped = %q", got)
	}
}
