package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestResolveLogFilePathDefaultDir(t *testing.T) {
	tmpDir := t.TempDir()
	oldWD, err := os.Getwd()
	if err != nil {
		t.Fatalf("get wd failed: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Chdir(oldWD)
	})
	if err := os.Chdir(tmpDir); err != nil {
		t.Fatalf("chdir failed: %v", err)
	}

	got, err := resolveLogFilePath("", "", defaultLogFilename)
	if err != nil {
		t.Fatalf("resolve default log path failed: %v", err)
	}

	realTmpDir, err := filepath.EvalSymlinks(tmpDir)
	if err != nil {
		t.Fatalf("resolve tmp dir symlink failed: %v", err)
	}
	realGot, err := filepath.EvalSymlinks(filepath.Dir(got))
	if err != nil {
		t.Fatalf("resolve got dir symlink failed: %v", err)
	}
	expectedDir := filepath.Join(realTmpDir, defaultLogDirName)
	if realGot != expectedDir {
		t.Fatalf("unexpected log dir: got=%s expected=%s", realGot, expectedDir)
	}
	if filepath.Base(got) != defaultLogFilename {
		t.Fatalf("unexpected log filename: %s", filepath.Base(got))
	}
	if _, err := os.Stat(filepath.Dir(got)); err != nil {
		t.Fatalf("expected log dir to be created: %v", err)
	}
}

func TestNewReleaseWritesToConfiguredFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := Options{
		Dir:      tmpDir,
		Filename: "release.log",
	}
	log := New("release", cfg)
	log.Info("release-log-test")
	_ = log.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "release.log"))
	if err != nil {
		t.Fatalf("read release log failed: %v", err)
	}
	if !strings.Contains(string(content), "release-log-test") {
		t.Fatalf("expected log content to contain message, got=%s", string(content))
	}
}

func TestNewDebugDoesNotWriteFile(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := Options{
		Dir:      tmpDir,
		Filename: "debug.log",
	}
	log := New("debug", cfg)
	log.Info("debug-log-test")
	_ = log.Sync()

	if _, err := os.Stat(filepath.Join(tmpDir, "debug.log")); !os.IsNotExist(err) {
		t.Fatalf("debug mode should not create log file")
	}
}

func TestNamedAttachesComponent(t *testing.T) {
	tmpDir := t.TempDir()
	L = New("release", Options{Dir: tmpDir, Filename: "named.log"})
	t.Cleanup(func() { L = nil })

	Named("settlement").Infow("named_log_test", "referral_id", 7)
	_ = L.Sync()

	content, err := os.ReadFile(filepath.Join(tmpDir, "named.log"))
	if err != nil {
		t.Fatalf("read named log failed: %v", err)
	}
	text := string(content)
	if !strings.Contains(text, `"component":"settlement"`) {
		t.Fatalf("expected component field, got=%s", text)
	}
	if !strings.Contains(text, `"referral_id":7`) {
		t.Fatalf("expected referral_id field, got=%s", text)
	}
}

func TestNamedEmptyFallsBackToRoot(t *testing.T) {
	if Named("  ") == nil {
		t.Fatalf("expected fallback logger")
	}
}

func TestAuditFileReceivesWarningsOnly(t *testing.T) {
	tmpDir := t.TempDir()
	log := New("release", Options{Dir: tmpDir, Filename: "main.log", AuditFilename: "audit.log"})
	log.Info("affiliate_order_processed")
	log.Warn("affiliate_fraud_rejected")
	_ = log.Sync()

	audit, err := os.ReadFile(filepath.Join(tmpDir, "audit.log"))
	if err != nil {
		t.Fatalf("read audit log failed: %v", err)
	}
	if strings.Contains(string(audit), "affiliate_order_processed") {
		t.Fatalf("info lines must not reach the audit file: %s", audit)
	}
	if !strings.Contains(string(audit), "affiliate_fraud_rejected") {
		t.Fatalf("expected warn line in audit file, got=%s", audit)
	}
	main, err := os.ReadFile(filepath.Join(tmpDir, "main.log"))
	if err != nil {
		t.Fatalf("read main log failed: %v", err)
	}
	if !strings.Contains(string(main), "affiliate_order_processed") || !strings.Contains(string(main), "affiliate_fraud_rejected") {
		t.Fatalf("main log should contain both lines, got=%s", main)
	}
}

func TestLevelOverride(t *testing.T) {
	if lvl := resolveLevel(true, "error"); lvl.Level() != zap.ErrorLevel {
		t.Fatalf("expected override to error, got %s", lvl.Level())
	}
	if lvl := resolveLevel(false, "bogus"); lvl.Level() != zap.InfoLevel {
		t.Fatalf("expected invalid override to fall back to info, got %s", lvl.Level())
	}
	if lvl := resolveLevel(true, ""); lvl.Level() != zap.DebugLevel {
		t.Fatalf("expected debug mode default, got %s", lvl.Level())
	}
}
