package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"turnero/internal/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalStorage(t *testing.T) {
	dir := t.TempDir()
	s := NewLocalStorage(dir)
	ctx := context.Background()

	path, err := s.Upload(ctx, "barber/agenda.xlsx", []byte("xlsx"), "application/octet-stream")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "barber", "agenda.xlsx"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "xlsx", string(data))

	_, err = s.Upload(ctx, "empty.xlsx", nil, "")
	assert.Error(t, err)
}

func TestS3Upload(t *testing.T) {
	var gotPath, gotBody, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			gotPath = r.URL.Path
			gotType = r.Header.Get("Content-Type")
			body, _ := io.ReadAll(r.Body)
			gotBody = string(body)
			w.Header().Set("ETag", `"d41d8cd98f00b204e9800998ecf8427e"`)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	endpoint := strings.TrimPrefix(server.URL, "http://")
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4("key", "secret", ""),
		Region: "us-east-1",
	})
	require.NoError(t, err)

	logger := zerolog.New(io.Discard)
	cfg := config.S3Config{Bucket: "exports", Region: "us-east-1", URLExpiry: 15 * time.Minute}
	s := newS3Storage(client, cfg, &logger)

	link, err := s.Upload(context.Background(), "barber/agenda.xlsx", []byte("xlsx"), "application/vnd.ms-excel")
	require.NoError(t, err)
	assert.Equal(t, "/exports/barber/agenda.xlsx", gotPath)
	assert.Equal(t, "xlsx", gotBody)
	assert.Equal(t, "application/vnd.ms-excel", gotType)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/exports/barber/agenda.xlsx", u.Path)
	assert.Equal(t, "900", u.Query().Get("X-Amz-Expires"))

	_, err = s.Upload(context.Background(), "x", nil, "")
	assert.Error(t, err)
}
