package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

const validConfig = `{
	"s3": {
		"endpoint": "http://minio:9000",
		"bucket": "documents",
		"access_key_id": "minioadmin",
		"secret_access_key": "minioadmin",
		"force_path_style": true
	},
	"knowledge": {
		"base_url": "http://openwebui:8080",
		"api_key": "sk-test",
		"knowledge_id": "kb-1"
	},
	"nats": {
		"urls": ["nats://localhost:4222"],
		"probe_timeout": "2s"
	},
	"mapping": {
		"backend": "auto",
		"file_path": "mappings.json"
	},
	"http": {
		"addr": ":5005",
		"request_timeout": "45s"
	}
}`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "documents", cfg.S3.Bucket)
	assert.True(t, cfg.S3.ForcePathStyle)
	assert.Equal(t, "kb-1", cfg.Knowledge.KnowledgeID)
	assert.Equal(t, []string{"nats://localhost:4222"}, cfg.NATS.URLs)
	assert.Equal(t, 2*time.Second, cfg.NATS.ProbeTimeout.Std())
	assert.Equal(t, 45*time.Second, cfg.HTTP.RequestTimeout.Std())

	// Defaults
	assert.Equal(t, "owui-kb-s3-sync-webhook", cfg.Service.Name)
	assert.Equal(t, "us-east-1", cfg.S3.Region)
	assert.Equal(t, "owui-mappings", cfg.NATS.KVBucket)
	assert.Equal(t, 10*time.Second, cfg.HTTP.ShutdownTimeout.Std())
}

func TestLoadMissingRequiredFields(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name:    "missing bucket",
			content: `{"knowledge": {"base_url": "http://x", "api_key": "k", "knowledge_id": "kb"}}`,
		},
		{
			name:    "missing knowledge url",
			content: `{"s3": {"bucket": "b"}, "knowledge": {"api_key": "k", "knowledge_id": "kb"}}`,
		},
		{
			name:    "missing api key",
			content: `{"s3": {"bucket": "b"}, "knowledge": {"base_url": "http://x", "knowledge_id": "kb"}}`,
		},
		{
			name:    "missing knowledge id",
			content: `{"s3": {"bucket": "b"}, "knowledge": {"base_url": "http://x", "api_key": "k"}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	content := `{
		"s3": {"bucket": "b"},
		"knowledge": {"base_url": "http://x", "api_key": "k", "knowledge_id": "kb"},
		"mapping": {"backend": "redis"}
	}`
	_, err := Load(writeConfig(t, content))
	assert.Error(t, err)
}

func TestLoadKVBackendRequiresNATSURLs(t *testing.T) {
	content := `{
		"s3": {"bucket": "b"},
		"knowledge": {"base_url": "http://x", "api_key": "k", "knowledge_id": "kb"},
		"mapping": {"backend": "kv"}
	}`
	_, err := Load(writeConfig(t, content))
	assert.Error(t, err)
}

func TestLoadMalformedJSON(t *testing.T) {
	_, err := Load(writeConfig(t, `{"s3": {`))
	assert.Error(t, err)
}

func TestLoadRejectsNonJSONPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("OWUI_SYNC_S3_BUCKET", "override-bucket")
	t.Setenv("OWUI_SYNC_OWUI_API_KEY", "sk-from-env")
	t.Setenv("OWUI_SYNC_NATS_URLS", "nats://a:4222, nats://b:4222")
	t.Setenv("OWUI_SYNC_PRUNE_ORPHANS", "true")

	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, "override-bucket", cfg.S3.Bucket)
	assert.Equal(t, "sk-from-env", cfg.Knowledge.APIKey)
	assert.Equal(t, []string{"nats://a:4222", "nats://b:4222"}, cfg.NATS.URLs)
	assert.True(t, cfg.Mapping.PruneOrphans)
}

func TestEnvOverrideInvalidBool(t *testing.T) {
	t.Setenv("OWUI_SYNC_PRUNE_ORPHANS", "maybe")

	_, err := Load(writeConfig(t, validConfig))
	assert.Error(t, err)
}

func TestDurationUnmarshal(t *testing.T) {
	var d Duration

	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`"not-a-duration"`)))
}

func TestValidateJSONDepth(t *testing.T) {
	assert.NoError(t, validateJSONDepth([]byte(`{"a": {"b": [1, 2]}}`)))
	assert.Error(t, validateJSONDepth([]byte(`{"a": {`)))

	deep := ""
	for i := 0; i < maxJSONDepth+1; i++ {
		deep += "["
	}
	for i := 0; i < maxJSONDepth+1; i++ {
		deep += "]"
	}
	assert.Error(t, validateJSONDepth([]byte(deep)))
}
