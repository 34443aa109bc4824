package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cvaz1306/owui-kb-s3-sync-webhook/errors"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient("", "key")
	assert.Error(t, err)

	_, err = NewClient("http://localhost:8080", "")
	assert.Error(t, err)

	c, err := NewClient("http://localhost:8080", "key")
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestUploadFile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/files/", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Contains(t, r.Header.Get("Content-Type"), "multipart/form-data")

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()

		assert.Equal(t, "docs/report.pdf", header.Filename)
		content, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "file body", string(content))

		json.NewEncoder(w).Encode(map[string]string{"id": "file-123"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	id, err := client.UploadFile(context.Background(), "docs/report.pdf",
		strings.NewReader("file body"))
	require.NoError(t, err)
	assert.Equal(t, "file-123", id)
}

func TestUploadFileServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]string{"detail": "storage offline"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, err = client.UploadFile(context.Background(), "a.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Contains(t, err.Error(), "storage offline")
}

func TestUploadFileMissingID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	_, err = client.UploadFile(context.Background(), "a.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestAddFileToKnowledge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/knowledge/kb-1/file/add", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "file-123", payload["file_id"])

		w.Write([]byte(`{"id":"kb-1"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	err = client.AddFileToKnowledge(context.Background(), "kb-1", "file-123")
	assert.NoError(t, err)
}

func TestRemoveFileFromKnowledge(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/knowledge/kb-1/file/remove", r.URL.Path)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "file-123", payload["file_id"])

		w.Write([]byte(`{"id":"kb-1"}`))
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	err = client.RemoveFileFromKnowledge(context.Background(), "kb-1", "file-123")
	assert.NoError(t, err)
}

func TestFileOpErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(map[string]string{"detail": "upstream unavailable"})
	}))
	defer server.Close()

	client, err := NewClient(server.URL, "test-key")
	require.NoError(t, err)

	err = client.AddFileToKnowledge(context.Background(), "kb-1", "file-123")
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.ErrorIs(t, err, errors.ErrRegisterFailed)

	err = client.RemoveFileFromKnowledge(context.Background(), "kb-1", "file-123")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDeregisterFailed)
}

func TestClientUnreachableServer(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", "test-key")
	require.NoError(t, err)

	_, err = client.UploadFile(context.Background(), "a.txt", strings.NewReader("x"))
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}
