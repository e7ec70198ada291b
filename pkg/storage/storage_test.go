package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"bookgate/config"
	"bookgate/pkg/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, data, 0o644))
}

func TestLocalLoader_Load(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "books/moby.epub", []byte("PK-moby"))

	loader, err := NewLocalLoader(root)
	require.NoError(t, err)
	assert.Equal(t, "local", loader.Kind())

	tests := []struct {
		name     string
		path     string
		want     []byte
		notFound bool
		failure  bool
	}{
		{name: "relative path", path: "books/moby.epub", want: []byte("PK-moby")},
		{name: "leading slash", path: "/books/moby.epub", want: []byte("PK-moby")},
		{name: "missing file", path: "books/absent.epub", notFound: true},
		{name: "parent escape", path: "../etc/passwd", failure: true},
		{name: "nested escape", path: "books/../../secret", failure: true},
		{name: "empty path", path: "", failure: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := loader.Load(context.Background(), tt.path)
			switch {
			case tt.notFound:
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrObjectNotFound)
				assert.True(t, models.IsCode(err, models.ErrCodeObjectNotFound))
			case tt.failure:
				require.Error(t, err)
				assert.ErrorIs(t, err, models.ErrStorageUnavailable)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, data)
			}
		})
	}
}

func TestLocalLoader_CancelledContext(t *testing.T) {
	loader, err := NewLocalLoader(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = loader.Load(ctx, "anything.epub")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalLoader_Errors(t *testing.T) {
	_, err := NewLocalLoader("  ")
	assert.Error(t, err)

	_, err = NewLocalLoader(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))
	_, err = NewLocalLoader(file)
	assert.Error(t, err)
}

type fakeS3 struct {
	objects map[string][]byte
	err     error
	gotKey  string
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.gotKey = aws.ToString(in.Key)
	if f.err != nil {
		return nil, f.err
	}
	data, ok := f.objects[f.gotKey]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func TestS3Loader_Load(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{"epub/moby.epub": []byte("PK-moby")}}
	loader := NewS3LoaderWithClient(fake, "books", "epub/")
	assert.Equal(t, "s3", loader.Kind())

	data, err := loader.Load(context.Background(), "/moby.epub")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK-moby"), data)
	assert.Equal(t, "epub/moby.epub", fake.gotKey)

	_, err = loader.Load(context.Background(), "absent.epub")
	assert.ErrorIs(t, err, models.ErrObjectNotFound)

	fake.err = errors.New("connection reset")
	_, err = loader.Load(context.Background(), "moby.epub")
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
	assert.NotErrorIs(t, err, models.ErrObjectNotFound)
}

func TestS3Loader_Key(t *testing.T) {
	assert.Equal(t, "a/b.epub", NewS3LoaderWithClient(nil, "b", "").key("/a/b.epub"))
	assert.Equal(t, "p/a.epub", NewS3LoaderWithClient(nil, "b", "p").key("a.epub"))
	assert.Equal(t, "p/a.epub", NewS3LoaderWithClient(nil, "b", "p/").key("a.epub"))
}

func TestS3Loader_AgainstHTTPServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/books/moby.epub":
			w.Header().Set("Content-Type", "application/epub+zip")
			_, _ = w.Write([]byte("PK-moby"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		}
	}))
	defer srv.Close()

	client := s3.New(s3.Options{
		Region:           "us-east-1",
		BaseEndpoint:     aws.String(srv.URL),
		UsePathStyle:     true,
		Credentials:      aws.AnonymousCredentials{},
		RetryMaxAttempts: 1,
	})
	loader := NewS3LoaderWithClient(client, "books", "")

	data, err := loader.Load(context.Background(), "moby.epub")
	require.NoError(t, err)
	assert.Equal(t, []byte("PK-moby"), data)

	_, err = loader.Load(context.Background(), "absent.epub")
	assert.ErrorIs(t, err, models.ErrObjectNotFound)
}

func TestNewLoader(t *testing.T) {
	root := t.TempDir()

	l, err := NewLoader(context.Background(), config.StorageConfig{Type: "local", Local: config.LocalStorageConfig{Root: root}})
	require.NoError(t, err)
	assert.Equal(t, "local", l.Kind())

	l, err = NewLoader(context.Background(), config.StorageConfig{
		Type: "s3",
		S3:   config.S3StorageConfig{Bucket: "books", Region: "eu-west-1", Endpoint: "http://localhost:9000", UsePathStyle: true},
	})
	require.NoError(t, err)
	assert.Equal(t, "s3", l.Kind())

	_, err = NewLoader(context.Background(), config.StorageConfig{Type: "s3"})
	assert.Error(t, err)

	_, err = NewLoader(context.Background(), config.StorageConfig{Type: "gcs"})
	assert.Error(t, err)
}
