package cmd

import (
	"errors"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestReadOnlyFlags_IncludesTUI(t *testing.T) {
	flags := ReadOnlyFlags()

	hasTUI := false
	for _, f := range flags {
		if f.Names()[0] == "tui" {
			hasTUI = true
			break
		}
	}

	if !hasTUI {
		t.Error("ReadOnlyFlags should include --tui flag for explicit error handling")
	}
}

func TestCommands_NoDuplicateFlags(t *testing.T) {
	for _, cmd := range []*cli.Command{RunCommand(), ReplayCommand(), StatsCommand(), VersionCommand("abc")} {
		seen := map[string]bool{}
		for _, f := range cmd.Flags {
			for _, name := range f.Names() {
				if seen[name] {
					t.Errorf("%s: duplicate flag --%s", cmd.Name, name)
				}
				seen[name] = true
			}
		}
	}
}

// commandContext parses args against cmd's real flag set, so IsSet and
// defaults behave exactly as they would under app.Run.
func commandContext(t *testing.T, cmd *cli.Command, args ...string) *cli.Context {
	t.Helper()
	fs := flag.NewFlagSet(cmd.Name, flag.ContinueOnError)
	for _, f := range cmd.Flags {
		if err := f.Apply(fs); err != nil {
			t.Fatalf("apply flag %v: %v", f.Names(), err)
		}
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parse args: %v", err)
	}
	return cli.NewContext(cli.NewApp(), fs, nil)
}

// newTestApp wires every command with ExitErrHandler suppressed so errors
// are returned instead of calling os.Exit.
func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Name = "framecap"
	app.Commands = []*cli.Command{RunCommand(), ReplayCommand(), StatsCommand(), VersionCommand("test")}
	app.ExitErrHandler = func(*cli.Context, error) {}
	return app
}

// exitCode extracts the process exit code an app.Run error maps to.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		return ec.ExitCode()
	}
	return 1
}

// captureStdout runs fn with os.Stdout redirected to a temp file.
func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	f, err := os.Create(filepath.Join(t.TempDir(), "stdout"))
	if err != nil {
		t.Fatalf("create stdout file: %v", err)
	}
	orig := os.Stdout
	os.Stdout = f
	defer func() { os.Stdout = orig }()

	fn()

	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read stdout file: %v", err)
	}
	return string(data)
}

func TestVersionCommand_JSON(t *testing.T) {
	app := newTestApp()
	var runErr error
	out := captureStdout(t, func() {
		runErr = app.Run([]string{"framecap", "version", "--format", "json"})
	})
	if runErr != nil {
		t.Fatalf("version failed: %v", runErr)
	}
	for _, want := range []string{`"version"`, `"contract_version"`, `"commit": "test"`} {
		if !strings.Contains(out, want) {
			t.Errorf("version output missing %s: %s", want, out)
		}
	}
}

func TestVersionCommand_RejectsTUI(t *testing.T) {
	err := newTestApp().Run([]string{"framecap", "version", "--tui"})
	if err == nil || !strings.Contains(err.Error(), "--tui is not supported") {
		t.Errorf("expected --tui rejection, got %v", err)
	}
}

func TestVersionCommand_InvalidFormat(t *testing.T) {
	err := newTestApp().Run([]string{"framecap", "version", "--format", "xml"})
	if err == nil || !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("expected invalid format error, got %v", err)
	}
}

func TestStatsCommand_RequiresStorage(t *testing.T) {
	err := newTestApp().Run([]string{"framecap", "stats"})
	if err == nil || !strings.Contains(err.Error(), "--storage-backend is required") {
		t.Errorf("expected storage error, got %v", err)
	}
}

func TestStatsCommand_EmptyDataset(t *testing.T) {
	err := newTestApp().Run([]string{"framecap", "stats",
		"--storage-backend", "fs",
		"--storage-path", t.TempDir(),
	})
	if err == nil {
		t.Fatal("expected error for empty dataset")
	}
}
