package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"xapikit/internal/config"
	"xapikit/internal/outbox"
	"xapikit/internal/store"
	xapisdk "xapikit/sdk/go"
	"xapikit/xapi"
)

func statementCmd() *cobra.Command {
	st := &cobra.Command{Use: "statement", Short: "Send and query statements"}
	st.AddCommand(statementSendCmd())
	st.AddCommand(statementGetCmd())
	st.AddCommand(statementQueryCmd())
	st.AddCommand(statementVoidCmd())
	return st
}

// resolveVerb accepts a verb name from the built-in table or a verb IRI.
func resolveVerb(v string) (xapi.Verb, error) {
	if v == "" {
		return xapi.Verb{}, fmt.Errorf("--verb required")
	}
	if verb, ok := xapi.LookupVerb(v); ok {
		return verb, nil
	}
	if strings.Contains(v, "://") {
		if verb, ok := xapi.VerbByID(v); ok {
			return verb, nil
		}
		name := v[strings.LastIndex(v, "/")+1:]
		return xapi.NewVerb(name, v), nil
	}
	return xapi.Verb{}, fmt.Errorf("unknown verb %q; see xapi verbs", v)
}

func actorFlag(cfg *config.Config, mbox string) (xapi.Actor, error) {
	if mbox != "" {
		a := xapi.AgentFromMailbox("", mbox)
		return a, a.Validate()
	}
	return cfg.DefaultActor()
}

type sendOptions struct {
	file         string
	verb         string
	activity     string
	activityName string
	mbox         string
	registration string
	success      bool
	completion   bool
	scoreRaw     float64
	scoreMin     float64
	scoreMax     float64
	scaled       float64
	duration     string
	offline      bool
}

func (o sendOptions) build(cmd *cobra.Command, cfg *config.Config) (xapi.Statement, error) {
	if o.file != "" {
		data, err := os.ReadFile(o.file)
		if err != nil {
			return xapi.Statement{}, err
		}
		return xapi.UnmarshalStatement(data)
	}
	actor, err := actorFlag(cfg, o.mbox)
	if err != nil {
		return xapi.Statement{}, err
	}
	verb, err := resolveVerb(o.verb)
	if err != nil {
		return xapi.Statement{}, err
	}
	if o.activity == "" {
		return xapi.Statement{}, fmt.Errorf("--activity required")
	}
	activity := xapi.NewActivity(o.activity)
	if o.activityName != "" {
		activity = activity.WithName("en-US", o.activityName)
	}
	s := xapi.NewStatement(actor, verb, activity)

	flags := cmd.Flags()
	var result xapi.Result
	hasResult := false
	if flags.Changed("success") {
		result, hasResult = result.WithSuccess(o.success), true
	}
	if flags.Changed("completion") {
		result, hasResult = result.WithCompletion(o.completion), true
	}
	switch {
	case flags.Changed("score-raw"):
		result, hasResult = result.WithScore(xapi.NewScore(o.scoreRaw, o.scoreMin, o.scoreMax)), true
	case flags.Changed("scaled"):
		result, hasResult = result.WithScore(xapi.ScaledScore(o.scaled)), true
	}
	if o.duration != "" {
		d, err := xapi.ParseDuration(o.duration)
		if err != nil {
			return xapi.Statement{}, err
		}
		result, hasResult = result.WithDuration(d), true
	}
	if hasResult {
		s = s.WithResult(result)
	}
	if o.registration != "" {
		s = s.WithContext(xapi.Context{Registration: o.registration})
	}
	return s, s.Validate()
}

func statementSendCmd() *cobra.Command {
	var o sendOptions
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Queue a statement in the outbox and flush it to the LRS",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *xapisdk.Client) error {
				s, err := o.build(cmd, cfg)
				if err != nil {
					return err
				}
				return withStore(ctx, func(ctx context.Context, st store.Store) error {
					entry, err := st.Enqueue(ctx, s, c.Endpoint.String())
					if err != nil {
						return err
					}
					if o.offline {
						return printOutbox([]store.OutboxEntry{entry})
					}
					rep, err := outbox.Flusher{Store: st, Sender: c, Logger: logger()}.Flush(ctx)
					if err != nil {
						return fmt.Errorf("statement queued as #%d: %w", entry.Seq, err)
					}
					return printOutbox(rep.Sent)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.file, "file", "", "read the statement from a JSON file")
	f.StringVar(&o.verb, "verb", "", "verb name (see xapi verbs) or IRI")
	f.StringVar(&o.activity, "activity", "", "activity IRI")
	f.StringVar(&o.activityName, "activity-name", "", "activity display name (en-US)")
	f.StringVar(&o.mbox, "actor-mbox", "", "actor email (defaults to config actor)")
	f.StringVar(&o.registration, "registration", "", "registration UUID")
	f.BoolVar(&o.success, "success", false, "result success")
	f.BoolVar(&o.completion, "completion", false, "result completion")
	f.Float64Var(&o.scoreRaw, "score-raw", 0, "raw score")
	f.Float64Var(&o.scoreMin, "score-min", 0, "minimum score")
	f.Float64Var(&o.scoreMax, "score-max", 100, "maximum score")
	f.Float64Var(&o.scaled, "scaled", 0, "scaled score in [-1,1]")
	f.StringVar(&o.duration, "duration", "", "ISO 8601 duration, e.g. PT1M30S")
	f.BoolVar(&o.offline, "offline", false, "only queue; send later with outbox flush")
	return cmd
}

func statementGetCmd() *cobra.Command {
	var voided bool
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a statement by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, _ *config.Config, c *xapisdk.Client) error {
				var s xapi.Statement
				var err error
				if voided {
					s, err = c.GetVoidedStatement(ctx, args[0])
				} else {
					s, err = c.GetStatement(ctx, args[0])
				}
				if err != nil {
					return err
				}
				return printJSON(s)
			})
		},
	}
	cmd.Flags().BoolVar(&voided, "voided", false, "fetch a voided statement")
	return cmd
}

func statementQueryCmd() *cobra.Command {
	var verb, activity, registration, since, until string
	var relatedActivities, relatedAgents bool
	var limit int
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query statements, following more links up to --limit",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := xapi.NewStatementQuery()
			q.Limit = limit
			q.ActivityID = activity
			q.RegistrationID = registration
			if verb != "" {
				v, err := resolveVerb(verb)
				if err != nil {
					return err
				}
				q.VerbID = v.ID()
			}
			for flag, dst := range map[string]**time.Time{"since": &q.Since, "until": &q.Until} {
				raw := since
				if flag == "until" {
					raw = until
				}
				if raw == "" {
					continue
				}
				t, err := xapi.ParseTimestamp(raw)
				if err != nil {
					return fmt.Errorf("--%s: %w", flag, err)
				}
				*dst = &t
			}
			if cmd.Flags().Changed("related-activities") {
				q.RelatedActivities = &relatedActivities
			}
			if cmd.Flags().Changed("related-agents") {
				q.RelatedAgents = &relatedAgents
			}
			return withClient(cmd.Context(), func(ctx context.Context, _ *config.Config, c *xapisdk.Client) error {
				res, err := c.CollectStatements(ctx, q)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				return printStatements(res.Statements)
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&verb, "verb", "", "verb name or IRI")
	f.StringVar(&activity, "activity", "", "activity IRI")
	f.StringVar(&registration, "registration", "", "registration UUID")
	f.StringVar(&since, "since", "", "only statements stored after this timestamp")
	f.StringVar(&until, "until", "", "only statements stored at or before this timestamp")
	f.BoolVar(&relatedActivities, "related-activities", false, "match the activity anywhere in the statement")
	f.BoolVar(&relatedAgents, "related-agents", false, "match agents anywhere in the statement")
	f.IntVar(&limit, "limit", xapi.DefaultQueryLimit, "maximum statements to collect (0 for all)")
	return cmd
}

func statementVoidCmd() *cobra.Command {
	var mbox string
	cmd := &cobra.Command{
		Use:   "void <id>",
		Short: "Void a statement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, cfg *config.Config, c *xapisdk.Client) error {
				actor, err := actorFlag(cfg, mbox)
				if err != nil {
					return err
				}
				stored, err := c.VoidStatement(ctx, actor, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]string{"voided": args[0], "voiding_statement": stored.ID})
			})
		},
	}
	cmd.Flags().StringVar(&mbox, "actor-mbox", "", "actor email (defaults to config actor)")
	return cmd
}
