package gcs

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	bytes.Buffer
	name        string
	contentType string
	writeErr    error
	closeErr    error
	closed      bool
}

func (w *fakeWriter) Write(p []byte) (int, error) {
	if w.writeErr != nil {
		return 0, w.writeErr
	}
	return w.Buffer.Write(p)
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return w.closeErr
}

func storeWithWriter(t *testing.T, cfg Config, w *fakeWriter) *BlobStore {
	t.Helper()
	s, err := newBlobStore(cfg)
	require.NoError(t, err)
	s.newWriter = func(_ context.Context, name, contentType string) objectWriter {
		w.name = name
		w.contentType = contentType
		return w
	}
	return s
}

func TestNewRequiresClientAndBucket(t *testing.T) {
	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
	_, err = newBlobStore(Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsWithPrefix(t *testing.T) {
	w := &fakeWriter{}
	s := storeWithWriter(t, Config{Bucket: "radar-artifacts", Prefix: "/prod/"}, w)

	uri, err := s.PutObject(context.Background(), "analyses/a1/crawl.json", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	require.Equal(t, "gs://radar-artifacts/prod/analyses/a1/crawl.json", uri)
	require.Equal(t, "prod/analyses/a1/crawl.json", w.name)
	require.Equal(t, "application/json", w.contentType)
	require.Equal(t, "{}", w.String())
	require.True(t, w.closed)
}

func TestPutObjectErrors(t *testing.T) {
	t.Run("empty path", func(t *testing.T) {
		s := storeWithWriter(t, Config{Bucket: "b"}, &fakeWriter{})
		_, err := s.PutObject(context.Background(), "", "", strings.NewReader("x"))
		require.Error(t, err)
	})

	t.Run("write failure closes writer", func(t *testing.T) {
		w := &fakeWriter{writeErr: errors.New("quota")}
		s := storeWithWriter(t, Config{Bucket: "b"}, w)
		_, err := s.PutObject(context.Background(), "a.txt", "", strings.NewReader("x"))
		require.ErrorContains(t, err, "quota")
		require.True(t, w.closed)
	})

	t.Run("close failure", func(t *testing.T) {
		w := &fakeWriter{closeErr: errors.New("precondition failed")}
		s := storeWithWriter(t, Config{Bucket: "b"}, w)
		_, err := s.PutObject(context.Background(), "a.txt", "", strings.NewReader("x"))
		require.ErrorContains(t, err, "precondition failed")
	})
}
