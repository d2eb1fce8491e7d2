package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/zulandar/proctor/internal/evaluation"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "proctor dev") {
		t.Errorf("expected output to contain 'proctor dev', got: %s", out)
	}
	if !strings.Contains(out, "commit: none") {
		t.Errorf("expected output to contain 'commit: none', got: %s", out)
	}
}

func TestVersionCmdWithCustomValues(t *testing.T) {
	origVersion, origCommit, origDate := Version, Commit, Date
	Version, Commit, Date = "1.0.0", "abc123", "2026-01-01"
	defer func() { Version, Commit, Date = origVersion, origCommit, origDate }()

	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(buf.String(), "proctor 1.0.0 (commit: abc123, built: 2026-01-01)") {
		t.Errorf("unexpected output: %s", buf.String())
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()
	want := []string{"version", "serve", "migrate", "sweep", "evaluate", "show"}
	have := map[string]bool{}
	for _, c := range cmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("missing subcommand %q", name)
		}
	}
	if f := cmd.PersistentFlags().Lookup("config"); f == nil || f.DefValue != defaultConfigPath {
		t.Errorf("config flag = %+v, want default %q", f, defaultConfigPath)
	}
}

func TestExecute_ReturnCodes(t *testing.T) {
	ok := &cobra.Command{Use: "ok", RunE: func(*cobra.Command, []string) error { return nil }}
	ok.SetArgs([]string{})
	if code := execute(ok); code != 0 {
		t.Errorf("execute(ok) = %d, want 0", code)
	}

	cmd := newRootCmd()
	cmd.SetOut(new(bytes.Buffer))
	cmd.SetErr(new(bytes.Buffer))
	cmd.SetArgs([]string{"evaluate"})
	if code := execute(cmd); code != 1 {
		t.Errorf("evaluate without id = %d, want 1", code)
	}
}

// writeConfig writes a sqlite config into a temp dir and returns its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	yaml := "database:\n  driver: sqlite\n  path: " + filepath.Join(dir, "proctor.db") + "\n" +
		"storage:\n  dir: " + filepath.Join(dir, "recordings") + "\n" +
		"logging:\n  level: error\n  format: json\n"
	path := filepath.Join(dir, "proctor.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestMigrateAndSweep(t *testing.T) {
	cfgPath := writeConfig(t)

	out, err := run(t, "migrate", "--config", cfgPath)
	if err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Migrated 5 tables") {
		t.Errorf("migrate output = %q", out)
	}

	// Migrating twice is harmless.
	if out, err := run(t, "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("second migrate: %v\n%s", err, out)
	}

	out, err = run(t, "sweep", "--config", cfgPath)
	if err != nil {
		t.Fatalf("sweep: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Scanned 0 stale interviews: 0 abandoned") {
		t.Errorf("sweep output = %q", out)
	}
}

func TestEvaluateAndShow_UnknownInterview(t *testing.T) {
	cfgPath := writeConfig(t)
	if out, err := run(t, "migrate", "--config", cfgPath); err != nil {
		t.Fatalf("migrate: %v\n%s", err, out)
	}

	for _, sub := range []string{"evaluate", "show"} {
		_, err := run(t, sub, "missing-id", "--config", cfgPath)
		if err == nil {
			t.Fatalf("%s: expected error for unknown interview", sub)
		}
		if !strings.Contains(err.Error(), "not found") {
			t.Errorf("%s: error = %q, want not found", sub, err.Error())
		}
	}
}

func TestLoadConfig_MissingExplicitPath(t *testing.T) {
	_, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for explicit missing config")
	}
}

func TestPrintResult(t *testing.T) {
	var buf bytes.Buffer
	err := printResult(&buf, &evaluation.Result{
		InterviewID: "iv-1",
		Technical:   &evaluation.TechnicalEvaluation{Score: 8},
		Decision: evaluation.HiringDecision{
			Recommendation: evaluation.RecommendHire,
			OverallScore:   8.2,
			Reasoning:      "Strong fundamentals.",
			NextSteps:      []string{"Team match", "Offer"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Recommendation: hire", "Overall score:  8.2/10", "Technical:      8.0/10", "  - Offer"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Communication") {
		t.Errorf("absent communication evaluation printed:\n%s", out)
	}
}
