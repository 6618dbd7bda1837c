package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/pavelanni/examdesk/internal/store"
)

func TestNormalizeBasePath(t *testing.T) {
	tests := []struct{ in, want string }{
		{"", ""},
		{"/", ""},
		{"exam", "/exam"},
		{"/exam/", "/exam"},
		{"/a/b", "/a/b"},
	}
	for _, tt := range tests {
		if got := normalizeBasePath(tt.in); got != tt.want {
			t.Errorf("normalizeBasePath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExamConfig(t *testing.T) {
	v := viper.New()
	v.Set("exam-duration-minutes", 30)
	v.Set("exam-question-count", 10)
	v.Set("pass-threshold", 0.6)
	cfg, err := examConfig(v)
	if err != nil {
		t.Fatalf("examConfig: %v", err)
	}
	if cfg.Duration != 30*time.Minute || cfg.QuestionCount != 10 || cfg.PassThreshold != 0.6 {
		t.Errorf("unexpected config %+v", cfg)
	}

	v.Set("pass-threshold", 1.5)
	if _, err := examConfig(v); err == nil {
		t.Error("expected error for threshold above 1")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestImportFileSkipsDuplicates(t *testing.T) {
	dir := t.TempDir()
	db, err := store.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer db.Close()

	set, err := resolveSet(db, "", "Geography", true)
	if err != nil {
		t.Fatalf("resolveSet: %v", err)
	}
	path := writeFile(t, dir, "geo.csv",
		"text,option_a,option_b,option_c,option_d,correct\nCapital of Peru?,Lima,Quito,Bogota,La Paz,a\n")

	for range 2 {
		if err := importFile(db, set, path, false); err != nil {
			t.Fatalf("importFile: %v", err)
		}
	}
	if n, _ := db.QuestionCount(&set.ID); n != 1 {
		t.Errorf("expected 1 question after duplicate import, got %d", n)
	}

	if err := importFile(db, set, path, true); err != nil {
		t.Fatalf("importFile force: %v", err)
	}
	if n, _ := db.QuestionCount(&set.ID); n != 2 {
		t.Errorf("forced import should add the rows again, got %d", n)
	}

	again, err := resolveSet(db, set.Token, "", false)
	if err != nil || again.ID != set.ID {
		t.Errorf("resolve by token: %+v, %v", again, err)
	}
	if _, err := resolveSet(db, "", "Missing", false); err == nil {
		t.Error("expected error for unknown set name without create")
	}
}

func TestImportAndListCommands(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "cli.db")
	csvPath := writeFile(t, dir, "math.csv",
		"text,option_a,option_b,option_c,option_d,correct\n2+2?,3,4,5,6,b\n3*3?,6,9,12,1,b\n")

	run := func(args ...string) string {
		t.Helper()
		cmd := rootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		if err := cmd.Execute(); err != nil {
			t.Fatalf("%v: %v\n%s", args, err, out.String())
		}
		return out.String()
	}

	out := run("import", "--db", dbPath, "--set-name", "Math", csvPath)
	if !strings.Contains(out, `set "Math" token`) {
		t.Errorf("unexpected import output %q", out)
	}

	out = run("sets", "--db", dbPath)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "NAME") || !strings.HasPrefix(lines[1], "Math") {
		t.Fatalf("unexpected sets output:\n%s", out)
	}
	token := strings.Fields(lines[1])[1]

	out = run("export", "questions", "--db", dbPath, "--set-token", token)
	if !strings.Contains(out, "2+2?,3,4,5,6,b") {
		t.Errorf("unexpected questions export:\n%s", out)
	}

	out = run("export", "results", "--db", dbPath)
	if strings.TrimSpace(out) != "set,email,index,score,total,percentage,passed,started_at,finished_at" {
		t.Errorf("expected header only, got:\n%s", out)
	}
}
