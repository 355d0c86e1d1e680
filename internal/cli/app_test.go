package cli

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"

	"github.com/dconlin/orch/internal/config"
	"github.com/dconlin/orch/internal/reap"
	"github.com/dconlin/orch/internal/registry"
)

func TestLoadManifest_MissingFileReturnsEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	manifest, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if manifest == nil {
		t.Fatal("expected non-nil empty manifest")
	}
	if len(manifest.Skills) != 0 {
		t.Errorf("expected no skills, got %d", len(manifest.Skills))
	}
}

func TestLoadManifest_ParsesExistingFile(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, ".orch"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "skills:\n  - name: investigate\n    file: investigate.md\n"
	path := filepath.Join(dir, ".orch", "skills.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	manifest, err := loadManifest(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(manifest.Skills) != 1 {
		t.Fatalf("expected 1 skill, got %d", len(manifest.Skills))
	}
	if manifest.Skills[0].Name != "investigate" {
		t.Errorf("expected skill name %q, got %q", "investigate", manifest.Skills[0].Name)
	}
}

func generateTestPrivateKeyFile(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("failed to generate RSA key: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	path := filepath.Join(t.TempDir(), "key.pem")
	if err := os.WriteFile(path, pemData, 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCommandPath_TopLevelCommand(t *testing.T) {
	command, subcommand := commandPath(rootCmd)
	if command != "orch" {
		t.Errorf("expected command %q, got %q", "orch", command)
	}
	if subcommand != "" {
		t.Errorf("expected empty subcommand for root, got %q", subcommand)
	}
}

func TestCommandPath_NilCommandDefaultsToRoot(t *testing.T) {
	command, subcommand := commandPath(nil)
	if command != "orch" || subcommand != "" {
		t.Errorf("expected (\"orch\", \"\"), got (%q, %q)", command, subcommand)
	}
}

func TestConfigureGitHubStatusCheck_ZeroValueIsNoOp(t *testing.T) {
	if err := configureGitHubStatusCheck(nil, config.GitHubConfig{}); err != nil {
		t.Errorf("expected no-op for zero-valued config, got error: %v", err)
	}
}

func TestConfigureGitHubStatusCheck_MissingKeyFileErrors(t *testing.T) {
	cfg := config.GitHubConfig{AppID: 1, InstallationID: 2, PrivateKeyPath: filepath.Join(t.TempDir(), "missing.pem")}
	if err := configureGitHubStatusCheck(nil, cfg); err == nil {
		t.Error("expected error for missing private key file")
	}
}

func TestConfigureGitHubStatusCheck_WiresReaperFields(t *testing.T) {
	keyPath := generateTestPrivateKeyFile(t)
	cfg := config.GitHubConfig{
		AppID:             123,
		InstallationID:    456,
		PrivateKeyPath:    keyPath,
		Owner:             "acme",
		Repo:              "widget",
		RequireGreenCheck: true,
	}

	store := registry.Open(filepath.Join(t.TempDir(), "agent-registry.json"))
	reaper := reap.New(store, nil, nil, nil)
	if err := configureGitHubStatusCheck(reaper, cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reaper.GitHubStatus == nil {
		t.Error("expected GitHubStatus to be wired")
	}
	if reaper.GitHubOwner != "acme" || reaper.GitHubRepo != "widget" {
		t.Errorf("expected owner/repo to be wired, got %q/%q", reaper.GitHubOwner, reaper.GitHubRepo)
	}
	if !reaper.GitHubRequireGreen {
		t.Error("expected GitHubRequireGreen to be wired")
	}
}
