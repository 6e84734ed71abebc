package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"consentsync/internal/config"
	"consentsync/internal/seed"
	"consentsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	fixtureDir string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t, opts...)
	cfg.Logging.Level = "error"
	base := testsupport.BaseDir(cfg)

	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)
	t.Setenv("CONSENTSYNC_SCHEMA_NAMESPACE", "")
	t.Setenv("CONSENTSYNC_DATABASE_DSN", "")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	env := &cliTestEnv{
		cfg:        cfg,
		configPath: configPath,
		baseDir:    base,
		fixtureDir: filepath.Join(base, "fixtures"),
	}
	writeFixtures(t, env.fixtureDir)
	return env
}

// writeFixtures lays out one customer, two email subscribers, two SMS
// subscribers, and one pre-existing user.
func writeFixtures(t *testing.T, dir string) {
	t.Helper()
	testsupport.WriteCSV(t, dir, seed.ClientsFile,
		[]string{"id", "email", "phone", "create_date"},
		[]string{"1", "a@x.com", "555", "2021-01-01 10:00:00"},
	)
	testsupport.WriteCSV(t, dir, seed.SubscribersFile,
		[]string{"id", "email", "gdpr_consent", "create_date"},
		[]string{"1", "a@x.com", "True", "2021-02-01 10:00:00"},
		[]string{"2", "c@x.com", "true", "2021-02-02 10:00:00"},
	)
	testsupport.WriteCSV(t, dir, seed.SubscriberSMSFile,
		[]string{"id", "phone", "gdpr_consent", "create_date"},
		[]string{"1", "555", "false", "2021-03-01 10:00:00"},
		[]string{"2", "777", "true", ""},
	)
	testsupport.WriteCSV(t, dir, seed.UsersFile,
		[]string{"id", "email", "phone", "gdpr_consent", "create_date"},
		[]string{"5", "b@x.com", "", "TRUE", "2020-12-01 00:00:00"},
	)
}

func (e *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	stdout, _, err := runCLI(t, args, e.configPath)
	return stdout, err
}

func (e *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	stdout, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("consentsync %s: %v", strings.Join(args, " "), err)
	}
	return stdout
}

func (e *cliTestEnv) mustRunJSON(t *testing.T, v any, args ...string) {
	t.Helper()
	stdout := e.mustRun(t, append([]string{"--json"}, args...)...)
	if err := json.Unmarshal([]byte(stdout), v); err != nil {
		t.Fatalf("decode %q: %v", stdout, err)
	}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := cfg.Encode()
	if err != nil {
		t.Fatalf("encode config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func readLog(t *testing.T, env *cliTestEnv) string {
	t.Helper()
	data, err := os.ReadFile(env.cfg.LogPath())
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
