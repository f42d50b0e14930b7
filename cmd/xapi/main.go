package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xapikit/internal/app"
	"xapikit/internal/config"
	"xapikit/internal/store"
	xapisdk "xapikit/sdk/go"
	"xapikit/xapi"
)

var rootCmd = &cobra.Command{
	Use:   "xapi",
	Short: "xAPI statement client and development LRS",
	Long: `xapi builds, sends and queries xAPI statements against a Learning Record Store.
- Statements: actor + verb + object records, sent in batches; the LRS assigns ids.
- Outbox: statements are queued in .xapi/xapi.db before they are sent, so nothing is lost offline.
- Documents: state and profile documents keyed by activity and agent.
- serve: a local SQLite-backed LRS for development and tests.
Settings come from xapi.yml, .env, XAPI_* environment variables and flags, in increasing priority.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintln(os.Stderr, "warning: .env:", err)
	}
	viper.SetEnvPrefix("XAPI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.BoolP("verbose", "v", false, "debug logging")
	flags.String("endpoint", "", "LRS endpoint (overrides xapi.yml)")
	flags.String("auth", "", "auth method: basic or basic-pre-encoded")
	flags.String("username", "", "LRS username")
	flags.String("password", "", "LRS password")
	flags.String("credential", "", "pre-encoded Base64 user:password")
	flags.String("timeout", "", "request timeout, e.g. 10s")
	for _, name := range []string{"workspace", "json", "verbose", "endpoint", "auth", "username", "password", "credential", "timeout"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(statementCmd())
	rootCmd.AddCommand(outboxCmd())
	rootCmd.AddCommand(stateCmd())
	rootCmd.AddCommand(verbsCmd())
	rootCmd.AddCommand(aboutCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func logger() zerolog.Logger {
	level := zerolog.InfoLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
}

func loadConfig() (*config.Config, error) {
	return app.ResolveConfig(viper.GetString("workspace"), app.Overrides{
		Endpoint:   viper.GetString("endpoint"),
		Auth:       viper.GetString("auth"),
		Username:   viper.GetString("username"),
		Password:   viper.GetString("password"),
		Credential: viper.GetString("credential"),
		Timeout:    viper.GetString("timeout"),
	})
}

func withClient(ctx context.Context, fn func(context.Context, *config.Config, *xapisdk.Client) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	c, err := app.NewClient(cfg, logger())
	if err != nil {
		return err
	}
	return fn(ctx, cfg, c)
}

func withStore(ctx context.Context, fn func(context.Context, store.Store) error) error {
	st, err := app.OpenStore(ctx, viper.GetString("workspace"))
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(ctx, st)
}

// printJSONOrTable renders v as JSON with --json, otherwise as a
// key/value table with nested fields flattened to dotted keys.
func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return err
	}
	rows := map[string]string{}
	flatten("", generic, rows)
	keys := make([]string, 0, len(rows))
	for k := range rows {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Field", "Value"})
	for _, k := range keys {
		tw.AppendRow(table.Row{k, rows[k]})
	}
	tw.Render()
	return nil
}

func flatten(prefix string, v any, out map[string]string) {
	join := func(k string) string {
		if prefix == "" {
			return k
		}
		return prefix + "." + k
	}
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 && prefix != "" {
			out[prefix] = "{}"
		}
		for k, child := range t {
			flatten(join(k), child, out)
		}
	case []any:
		if len(t) == 0 {
			out[prefix] = "[]"
		}
		for i, child := range t {
			flatten(join(strconv.Itoa(i)), child, out)
		}
	case nil:
		out[prefix] = ""
	case string:
		out[prefix] = t
	default:
		b, _ := json.Marshal(t)
		out[prefix] = string(b)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStatements(statements []xapi.Statement) error {
	if viper.GetBool("json") {
		return printJSON(statements)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Timestamp", "Actor", "Verb", "Object"})
	for _, s := range statements {
		verb := s.Verb.Name()
		if verb == "" {
			verb = s.Verb.ID()
		}
		object := xapi.ObjectID(s.Object)
		if object == "" && s.Object != nil {
			object = s.Object.ObjectType()
		}
		tw.AppendRow(table.Row{s.ID, s.Timestamp, s.Actor.Identifier(), verb, object})
	}
	tw.Render()
	return nil
}
