package cli

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/peterbourgon/ff/v3/ffcli"
)

func TestMapValue(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	var creds map[string]string
	fsMapVar(fs, &creds, "creds", nil, "")
	if err := fs.Parse([]string{"--creds", "user1:pass1,user2:pa:ss2"}); err != nil {
		t.Fatal(err)
	}
	if len(creds) != 2 || creds["user1"] != "pass1" || creds["user2"] != "pa:ss2" {
		t.Errorf("creds = %v", creds)
	}
	if err := fs.Parse([]string{"--creds", "nopass"}); err == nil {
		t.Error("Parse() err = nil; want error")
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	config := filepath.Join(dir, "history.yaml")
	data := "db-type: sqlite\ndb-conn: " + filepath.Join(dir, "history.db") + "\nformat: csv\nlimit: 7\n"
	if err := os.WriteFile(config, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	cmd := newHistoryCommand()
	if err := cmd.Parse([]string{"--config", config, "--limit", "3"}); err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		want string
	}{
		{"db-type", "sqlite"},
		{"format", "csv"},
		{"limit", "3"},
	}
	for _, tt := range tests {
		if got := cmd.FlagSet.Lookup(tt.name).Value.String(); got != tt.want {
			t.Errorf("%s = %q; want %q", tt.name, got, tt.want)
		}
	}
}

func TestEnvVars(t *testing.T) {
	t.Setenv("SONICREMIX_GEMINI_KEY", "secret")
	t.Setenv("SONICREMIX_SPEECH_PROVIDER", "openai")
	cmd := newServeCommand()
	if err := cmd.Parse(nil); err != nil {
		t.Fatal(err)
	}
	if got := cmd.FlagSet.Lookup("gemini-key").Value.String(); got != "secret" {
		t.Errorf("gemini-key = %q; want %q", got, "secret")
	}
	if got := cmd.FlagSet.Lookup("speech-provider").Value.String(); got != "openai" {
		t.Errorf("speech-provider = %q; want %q", got, "openai")
	}
}

func TestTimeoutDefault(t *testing.T) {
	for _, cmd := range []*ffcli.Command{newServeCommand(), newRemixCommand()} {
		if err := cmd.Parse(nil); err != nil {
			t.Fatal(err)
		}
		if got := cmd.FlagSet.Lookup("timeout").Value.String(); got != "0s" {
			t.Errorf("%s timeout = %q; want %q", cmd.Name, got, "0s")
		}
	}
}

func TestRootHelp(t *testing.T) {
	cmd := New("1.0.0", "abc", "today")
	if err := cmd.Parse([]string{"version"}); err != nil {
		t.Fatal(err)
	}
	if err := cmd.Run(context.Background()); err != nil {
		t.Errorf("version err = %v; want nil", err)
	}
}
