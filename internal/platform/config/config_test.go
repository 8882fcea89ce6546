package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadWithDefaults(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":    "mobilia-dev",
		"API_STORAGE_UPLOADS_BUCKET": "mobilia-uploads-dev",
	}

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("expected default log level, got %s", cfg.Server.LogLevel)
	}
	if cfg.Firestore.ProjectID != "mobilia-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "mobilia-dev" {
		t.Errorf("expected pubsub project to default to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Storage.MaxUploadBytes != defaultMaxUploadBytes {
		t.Errorf("unexpected max upload bytes: %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.Storage.UploadPrefix != "special-products/uploads" {
		t.Errorf("unexpected upload prefix: %s", cfg.Storage.UploadPrefix)
	}
	if cfg.Storage.UploadRateLimit != defaultUploadRateLimit || cfg.Storage.UploadRateWindow != time.Minute {
		t.Errorf("unexpected upload rate limit: %d per %s", cfg.Storage.UploadRateLimit, cfg.Storage.UploadRateWindow)
	}
	if cfg.Cache.RedisAddr != "" || cfg.Cache.ProductTTL != defaultProductCacheTTL {
		t.Errorf("unexpected cache config: %+v", cfg.Cache)
	}
	if len(cfg.Security.AdminRoles) != 2 || cfg.Security.RoleClaim != "role" {
		t.Errorf("unexpected security defaults: %+v", cfg.Security)
	}
	if cfg.Firestore.DialTimeout != defaultFirestoreDialTimeout {
		t.Errorf("unexpected firestore dial timeout: %s", cfg.Firestore.DialTimeout)
	}
	if cfg.Idempotency.Header != defaultIdempotencyHeader || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency config: %+v", cfg.Idempotency)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"API_SERVER_PORT":                  "9090",
		"API_SERVER_READ_TIMEOUT":          "20s",
		"LOG_LEVEL":                        "debug",
		"API_FIREBASE_PROJECT_ID":          "mobilia-prod",
		"API_FIRESTORE_PROJECT_ID":         "mobilia-db",
		"API_STORAGE_UPLOADS_BUCKET":       "uploads-prod",
		"API_STORAGE_PUBLIC_BASE_URL":      "https://cdn.example.com/",
		"API_STORAGE_MAX_UPLOAD_BYTES":     "2048",
		"API_STORAGE_UPLOAD_RATE_LIMIT":    "0",
		"API_PUBSUB_SPECIAL_PRODUCT_TOPIC": "special-products",
		"API_CACHE_REDIS_ADDR":             "localhost:6379",
		"API_CACHE_REDIS_PASSWORD":         "sm://redis-password",
		"API_CACHE_PRODUCT_TTL":            "30s",
		"API_SECURITY_ADMIN_ROLES":         "Admin, catalog ",
	}
	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved-" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.ReadTimeout != 20*time.Second || cfg.Server.LogLevel != "debug" {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Firestore.ProjectID != "mobilia-db" {
		t.Errorf("unexpected firestore project: %s", cfg.Firestore.ProjectID)
	}
	if cfg.Storage.PublicBaseURL != "https://cdn.example.com" || cfg.Storage.MaxUploadBytes != 2048 || cfg.Storage.UploadRateLimit != 0 {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if cfg.Cache.RedisPassword != "resolved-secret://redis-password" {
		t.Errorf("expected resolved redis password, got %q", cfg.Cache.RedisPassword)
	}
	if len(refs) != 1 {
		t.Errorf("expected a single secret lookup, got %v", refs)
	}
	if got := cfg.Security.AdminRoles; len(got) != 2 || got[0] != "admin" || got[1] != "catalog" {
		t.Errorf("unexpected admin roles: %v", got)
	}
}

func TestLoadValidationError(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	fields := verr.Fields()
	want := map[string]bool{"Firebase.ProjectID": true, "Firestore.ProjectID": true, "Storage.UploadsBucket": true}
	for _, field := range fields {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Errorf("missing expected fields %v in %v", want, fields)
	}
}

func TestLoadSecretWithoutResolver(t *testing.T) {
	env := map[string]string{
		"API_FIREBASE_PROJECT_ID":    "p",
		"API_STORAGE_UPLOADS_BUCKET": "b",
		"API_CACHE_REDIS_PASSWORD":   "secret://redis-password",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Errorf("expected resolver not configured, got %v", err)
	}
}

func TestLoadDotEnvPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "API_FIREBASE_PROJECT_ID=from-file\nAPI_STORAGE_UPLOADS_BUCKET=\"file-bucket\"\nAPI_SERVER_PORT=7000\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"API_SERVER_PORT": "7100"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" || cfg.Storage.UploadsBucket != "file-bucket" {
		t.Errorf("expected values from .env, got %+v %+v", cfg.Firebase, cfg.Storage)
	}
	if cfg.Server.Port != "7100" {
		t.Errorf("expected explicit map to override .env, got %s", cfg.Server.Port)
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	env := map[string]string{"API_FIREBASE_PROJECT_ID": "p", "API_STORAGE_UPLOADS_BUCKET": "b"}
	_, err := Load(context.Background(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")), WithoutSystemEnv(), WithEnvMap(env))
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
