package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xapikit/internal/app"
	"xapikit/internal/config"
	"xapikit/internal/outbox"
	"xapikit/internal/server"
	"xapikit/internal/store"
	xapisdk "xapikit/sdk/go"
	"xapikit/xapi"
)

func outboxCmd() *cobra.Command {
	ob := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and flush queued statements",
		Long:  "The outbox keeps every statement built by the CLI until the LRS has acknowledged it. Failed sends stay pending and are retried on the next flush.",
	}
	ob.AddCommand(outboxListCmd())
	ob.AddCommand(outboxFlushCmd())
	return ob
}

func outboxListCmd() *cobra.Command {
	var status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List outbox entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				entries, err := st.ListOutbox(ctx, status)
				if err != nil {
					return err
				}
				return printOutbox(entries)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "filter by status (pending, sent)")
	return cmd
}

func outboxFlushCmd() *cobra.Command {
	var watch bool
	var interval time.Duration
	var batch int
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Send pending statements to the LRS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, _ *config.Config, c *xapisdk.Client) error {
				return withStore(ctx, func(ctx context.Context, st store.Store) error {
					f := outbox.Flusher{Store: st, Sender: c, BatchSize: batch, Logger: logger()}
					if watch {
						err := f.Run(ctx, interval)
						if errors.Is(err, context.Canceled) {
							return nil
						}
						return err
					}
					rep, err := f.Flush(ctx)
					if err != nil {
						return err
					}
					if viper.GetBool("json") {
						return printJSON(rep)
					}
					if rep.Degraded != "" {
						fmt.Fprintln(os.Stderr, "warning:", rep.Degraded)
					}
					return printOutbox(rep.Sent)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "keep flushing until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", outbox.DefaultInterval, "flush interval with --watch")
	cmd.Flags().IntVar(&batch, "batch", 0, "maximum statements per batch (0 for all)")
	return cmd
}

func printOutbox(entries []store.OutboxEntry) error {
	if viper.GetBool("json") {
		return printJSON(entries)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Seq", "Status", "Statement ID", "Attempts", "Created", "Last Error"})
	for _, e := range entries {
		tw.AppendRow(table.Row{e.Seq, e.Status, e.StatementID, e.Attempts, e.CreatedAt, e.LastError})
	}
	tw.Render()
	return nil
}

func stateCmd() *cobra.Command {
	var activity, mbox, registration string
	sc := &cobra.Command{
		Use:   "state",
		Short: "Read and write state documents",
	}
	sc.PersistentFlags().StringVar(&activity, "activity", "", "activity IRI")
	sc.PersistentFlags().StringVar(&mbox, "actor-mbox", "", "agent email (defaults to config actor)")
	sc.PersistentFlags().StringVar(&registration, "registration", "", "registration UUID")
	query := func(cfg *config.Config, stateID string) (xapi.StateQuery, error) {
		agent, err := actorFlag(cfg, mbox)
		if err != nil {
			return xapi.StateQuery{}, err
		}
		return xapi.StateQuery{ActivityID: activity, Agent: &agent, Registration: registration, StateID: stateID}, nil
	}

	get := &cobra.Command{
		Use:   "get [state-id]",
		Short: "Print a state document, or list ids when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *xapisdk.Client) error {
				q, err := query(cfg, firstArg(args))
				if err != nil {
					return err
				}
				if q.StateID == "" {
					ids, err := c.ListStateIDs(ctx, q)
					if err != nil {
						return err
					}
					return printJSON(ids)
				}
				doc, err := c.GetState(ctx, q)
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(doc.Content)
				return err
			})
		},
	}

	var file, contentType string
	put := &cobra.Command{
		Use:   "put <state-id>",
		Short: "Store a state document from --file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			return withClient(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *xapisdk.Client) error {
				q, err := query(cfg, args[0])
				if err != nil {
					return err
				}
				return c.PutState(ctx, q, xapisdk.Document{ID: args[0], ContentType: contentType, Content: content})
			})
		},
	}
	put.Flags().StringVar(&file, "file", "", "document file")
	put.Flags().StringVar(&contentType, "content-type", "application/json", "document content type")
	_ = put.MarkFlagRequired("file")

	del := &cobra.Command{
		Use:   "delete [state-id]",
		Short: "Delete a state document, or all of them when no id is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *xapisdk.Client) error {
				q, err := query(cfg, firstArg(args))
				if err != nil {
					return err
				}
				return c.DeleteState(ctx, q)
			})
		},
	}
	sc.AddCommand(get, put, del)
	return sc
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func verbsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verbs",
		Short: "List the built-in verb vocabulary",
		RunE: func(cmd *cobra.Command, args []string) error {
			names := xapi.VerbNames()
			if viper.GetBool("json") {
				out := make(map[string]string, len(names))
				for _, n := range names {
					v, _ := xapi.LookupVerb(n)
					out[n] = v.ID()
				}
				return printJSON(out)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"Name", "IRI", "Locales"})
			for _, n := range names {
				v, _ := xapi.LookupVerb(n)
				tw.AppendRow(table.Row{n, v.ID(), len(v.Display())})
			}
			tw.Render()
			return nil
		},
	}
}

func aboutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "about",
		Short: "Show the versions the LRS supports",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, _ *config.Config, c *xapisdk.Client) error {
				about, err := c.About(ctx)
				if err != nil {
					return err
				}
				if !about.Supports(xapi.Version) {
					fmt.Fprintf(os.Stderr, "warning: LRS does not list version %s\n", xapi.Version)
				}
				return printJSONOrTable(about)
			})
		},
	}
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Manage xapi.yml",
		Long:  "xapi.yml holds the LRS endpoint and credentials, the default actor, and the settings of the development LRS started by xapi serve.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configUseCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the resolved config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSONOrTable(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate xapi.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
}

func configInitCmd() *cobra.Command {
	var endpoint string
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default xapi.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			}
			if _, err := config.FromYAML([]byte(config.GenerateDefault(endpoint))); err != nil {
				return err
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(endpoint)), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&endpoint, "endpoint", "http://127.0.0.1:8080/xapi/", "LRS endpoint")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// configUseCmd pins an endpoint for the workspace in .env, which is read
// before XAPI_* variables are resolved.
func configUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <endpoint>",
		Short: "Set XAPI_ENDPOINT in the workspace .env",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := xapi.NewEndpoint(args[0]); err != nil {
				return err
			}
			path := filepath.Join(viper.GetString("workspace"), ".env")
			return setEnvValue(path, "XAPI_ENDPOINT", args[0])
		},
	}
}

func setEnvValue(path, key, value string) error {
	env, err := godotenv.Read(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
		env = map[string]string{}
	}
	env[key] = value
	return godotenv.Write(env, path)
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the development LRS",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger()
			return withStore(cmd.Context(), func(ctx context.Context, st store.Store) error {
				sc, err := app.ServerConfig(cfg, st, log)
				if err != nil {
					return err
				}
				if basePath != "" {
					sc.BasePath = basePath
				}
				if addr == "" {
					addr = cfg.Server.Addr
				}
				handler, err := server.New(sc)
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					_ = srv.Shutdown(shutdownCtx)
				}()
				if sc.Auth.Anonymous {
					log.Warn().Msg("no credentials configured; accepting anonymous requests")
				}
				log.Info().Str("addr", addr).Str("base_path", sc.BasePath).Msgf("serving xAPI LRS on http://%s%s (OpenAPI at %s/openapi.json)", addr, sc.BasePath, sc.BasePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}
