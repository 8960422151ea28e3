package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/igolaizola/sonicremix"
	"github.com/igolaizola/sonicremix/pkg/cmd/history"
	"github.com/igolaizola/sonicremix/pkg/cmd/migrate"
	"github.com/igolaizola/sonicremix/pkg/cmd/remix"
	"github.com/igolaizola/sonicremix/pkg/cmd/web"
	"github.com/peterbourgon/ff/ffyaml"
	"github.com/peterbourgon/ff/v3"
	"github.com/peterbourgon/ff/v3/ffcli"
)

const envPrefix = "SONICREMIX"

func New(version, commit, date string) *ffcli.Command {
	fs := flag.NewFlagSet("sonicremix", flag.ExitOnError)

	return &ffcli.Command{
		ShortUsage: "sonicremix [flags] <subcommand>",
		FlagSet:    fs,
		Exec: func(context.Context, []string) error {
			return flag.ErrHelp
		},
		Subcommands: []*ffcli.Command{
			newVersionCommand(version, commit, date),
			newMigrateCommand(),
			newServeCommand(),
			newRemixCommand(),
			newHistoryCommand(),
		},
	}
}

func newVersionCommand(version, commit, date string) *ffcli.Command {
	return &ffcli.Command{
		Name:       "version",
		ShortUsage: "sonicremix version",
		ShortHelp:  "print version",
		Exec: func(ctx context.Context, args []string) error {
			v := version
			if v == "" {
				if buildInfo, ok := debug.ReadBuildInfo(); ok {
					v = buildInfo.Main.Version
				}
			}
			if v == "" {
				v = "dev"
			}
			versionFields := []string{v}
			if commit != "" {
				versionFields = append(versionFields, commit)
			}
			if date != "" {
				versionFields = append(versionFields, date)
			}
			fmt.Println(strings.Join(versionFields, " "))
			return nil
		},
	}
}

func command(name, usage string, fs *flag.FlagSet, exec func(ctx context.Context, args []string) error) *ffcli.Command {
	return &ffcli.Command{
		Name:       name,
		ShortUsage: fmt.Sprintf("sonicremix %s [flags]", name),
		Options: []ff.Option{
			ff.WithConfigFileFlag("config"),
			ff.WithConfigFileParser(ffyaml.Parser),
			ff.WithEnvVarPrefix(envPrefix),
		},
		ShortHelp: usage,
		FlagSet:   fs,
		Exec:      exec,
	}
}

func newMigrateCommand() *ffcli.Command {
	cmd := "migrate"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &migrate.Config{}

	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")

	return command(cmd, "create or update the history database", fs, func(ctx context.Context, args []string) error {
		return migrate.Run(ctx, cfg)
	})
}

// backendFlags registers the flags of the remote services.
func backendFlags(fs *flag.FlagSet, cfg *sonicremix.Backend) {
	fs.StringVar(&cfg.Proxy, "proxy", "", "proxy to use")
	fs.StringVar(&cfg.GeminiKey, "gemini-key", "", "gemini api key")
	fs.StringVar(&cfg.OpenAIKey, "openai-key", "", "openai api key (only for the openai speech provider)")
	fs.StringVar(&cfg.SpeechProvider, "speech-provider", "gemini", "speech provider for the fallback (gemini, openai)")
	fs.StringVar(&cfg.AudioModel, "audio-model", "", "model used to generate audio")
	fs.StringVar(&cfg.AnalysisModel, "analysis-model", "", "model used to analyze the input")
	fs.StringVar(&cfg.SpeechModel, "speech-model", "", "model used for text to speech")
	fs.StringVar(&cfg.Voice, "voice", "", "voice of the generated audio")
	fs.StringVar(&cfg.FallbackVoice, "fallback-voice", "", "voice of the fallback speech")
}

func newServeCommand() *ffcli.Command {
	cmd := "serve"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &web.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	backendFlags(fs, &cfg.Backend)
	fs.StringVar(&cfg.Lang, "lang", "ru", "language of the user messages (ru, en)")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type to keep the history (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "local", "fs type (local, s3, telegram)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
	fs.StringVar(&cfg.Cache, "cache", "", "local cache folder for audio handles")

	fs.StringVar(&cfg.Addr, "addr", ":1337", "address to listen on")
	fsMapVar(fs, &cfg.Credentials, "creds", nil, "credentials to use (comma separated) Example: user1:pass1,user2:pass2")
	fs.BoolVar(&cfg.Open, "open", false, "open the browser")
	fs.DurationVar(&cfg.SessionTTL, "session-ttl", time.Hour, "idle time before a session is discarded")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "timeout of a remix (0 means no timeout)")
	fs.StringVar(&cfg.FFmpeg, "ffmpeg", "", "ffmpeg binary used to visualize formats other than mp3 and wav (optional)")
	fs.BoolVar(&cfg.Ngrok, "ngrok", false, "expose the server through an ngrok tunnel")

	return command(cmd, "serve the remix web app", fs, func(ctx context.Context, args []string) error {
		cfg.Backend.Debug = cfg.Debug
		return web.Serve(ctx, cfg)
	})
}

func newRemixCommand() *ffcli.Command {
	cmd := "remix"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &remix.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	backendFlags(fs, &cfg.Backend)
	fs.StringVar(&cfg.Lang, "lang", "en", "language of the user messages (ru, en)")
	fs.DurationVar(&cfg.Timeout, "timeout", 0, "timeout of the remix (0 means no timeout)")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type to keep the history (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.FSType, "fs-type", "local", "fs type (local, s3, telegram)")
	fs.StringVar(&cfg.FSConn, "fs-conn", "", "path for local, key:secret@bucket.region for s3, token@chat for telegram")
	fs.StringVar(&cfg.Cache, "cache", "", "local cache folder for audio handles")

	fs.StringVar(&cfg.Input, "input", "", "input audio file")
	fs.StringVar(&cfg.Output, "output", "", "output file (default remix-<input>)")
	fs.StringVar(&cfg.Wave, "wave", "", "write a waveform jpeg of the remix (optional)")

	return command(cmd, "remix a local audio file", fs, func(ctx context.Context, args []string) error {
		if cfg.Input == "" && len(args) > 0 {
			cfg.Input = args[0]
		}
		cfg.Backend.Debug = cfg.Debug
		return remix.Run(ctx, cfg)
	})
}

func newHistoryCommand() *ffcli.Command {
	cmd := "history"
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	_ = fs.String("config", "", "config file (optional)")

	cfg := &history.Config{}

	fs.BoolVar(&cfg.Debug, "debug", false, "debug mode")
	fs.StringVar(&cfg.DBType, "db-type", "", "db type (sqlite, mysql, postgres)")
	fs.StringVar(&cfg.DBConn, "db-conn", "", "path for sqlite, dsn for mysql or postgres")
	fs.StringVar(&cfg.Format, "format", "table", "output format (table, csv, json, yaml)")
	fs.StringVar(&cfg.Output, "output", "", "output file (default stdout)")
	fs.IntVar(&cfg.Limit, "limit", 100, "maximum number of remixes")
	fs.BoolVar(&cfg.Failed, "failed", false, "only failed remixes")
	fs.StringVar(&cfg.Session, "session", "", "only remixes of this session")

	return command(cmd, "list the remix history", fs, func(ctx context.Context, args []string) error {
		return history.Run(ctx, cfg)
	})
}

type mapValue struct {
	v *map[string]string
}

func (m *mapValue) String() string {
	if m.v == nil {
		return ""
	}
	return fmt.Sprintf("%v", map[string]string(*m.v))
}

func (m *mapValue) Set(value string) error {
	if m.v == nil {
		return errors.New("nil map reference")
	}
	pairs := strings.Split(value, ",")
	for _, pair := range pairs {
		parts := strings.SplitN(pair, ":", 2)
		if len(parts) != 2 {
			return fmt.Errorf("invalid map entry: %s", pair)
		}
		(*m.v)[parts[0]] = parts[1]
	}
	return nil
}

func fsMapVar(fs *flag.FlagSet, p *map[string]string, name string, value map[string]string, usage string) {
	if value == nil {
		value = make(map[string]string)
	}
	*p = value
	fs.Var(&mapValue{p}, name, usage)
}
