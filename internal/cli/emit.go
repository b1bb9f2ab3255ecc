package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/emit"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/engine"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/natsx"
)

// EmitOptions holds flags for the emit command.
type EmitOptions struct {
	*RootOptions
	Tenant  string
	Data    string   // JSON object
	Set     []string // key=value string fields
	Publish bool
}

// PublishedEvent is the result of emit --publish.
type PublishedEvent struct {
	Type     ir.TriggerType `json:"type"`
	TenantID string         `json:"tenant_id"`
	Subject  string         `json:"subject"`
}

// RenderText implements TextRenderer.
func (p PublishedEvent) RenderText(w io.Writer) {
	fmt.Fprintf(w, "✓ Published %s for tenant %s on %s\n", p.Type, p.TenantID, p.Subject)
}

// summaryView renders an engine summary for the terminal.
type summaryView struct {
	engine.Summary
}

// RenderText implements TextRenderer.
func (s summaryView) RenderText(w io.Writer) {
	if s.Error != "" {
		fmt.Fprintf(w, "✗ %s rejected: %s\n", s.EventType, s.Error)
		return
	}
	fmt.Fprintf(w, "%s for tenant %s: %d rule(s) matched, %d skipped\n",
		s.EventType, s.TenantID, s.Matched, len(s.Skipped))
	for _, run := range s.Runs {
		fmt.Fprintf(w, "  rule %s (%s) %s\n", run.RuleName, run.RuleID, run.State)
		if run.Error != "" {
			fmt.Fprintf(w, "    error: %s\n", run.Error)
		}
		for _, r := range run.Results {
			mark := "✓"
			if !r.Success {
				mark = "✗"
			}
			line := fmt.Sprintf("    %s %d %s", mark, r.Order, r.Type)
			if r.Error != "" {
				line += ": " + r.Error
			}
			fmt.Fprintln(w, line)
		}
	}
}

// NewEmitCommand creates the emit command.
func NewEmitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &EmitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "emit <trigger-type>",
		Short: "Emit a trigger event",
		Long: `Emit one trigger event.

By default the event runs through a local engine against the configured
store and the summary is printed. With --publish it is wrapped in a
CloudEvent and published on NATS for a running "bizflow serve".

Trigger types: CONTACT_CREATED, TAG_ADDED, PIPELINE_STAGE_CHANGED,
FORM_SUBMITTED, STAGE_ENTER, CARD_CREATED.

Examples:
  bizflow emit CONTACT_CREATED --tenant t1 --set contactId=c1 --set contactEmail=a@b.com
  bizflow emit PIPELINE_STAGE_CHANGED --tenant t1 --data '{"opportunityId":"o1","newStageId":"s2"}'
  bizflow emit TAG_ADDED --tenant t1 --set tag=vip --publish`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEmit(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Tenant, "tenant", "t", "", "tenant ID (required)")
	cmd.Flags().StringVarP(&opts.Data, "data", "d", "{}", "event data as a JSON object")
	cmd.Flags().StringArrayVar(&opts.Set, "set", nil, "string data field key=value (repeatable)")
	cmd.Flags().BoolVar(&opts.Publish, "publish", false, "publish on NATS instead of running locally")
	_ = cmd.MarkFlagRequired("tenant")

	return cmd
}

func runEmit(opts *EmitOptions, typeArg string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)

	ev, err := buildEvent(typeArg, opts.Tenant, opts.Data, opts.Set)
	if err != nil {
		_ = formatter.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}

	if opts.Publish {
		if cfg.NATS.URL == "" {
			return NewExitError(ExitCommandError, "--publish requires nats.url")
		}
		nc, err := natsx.Connect(cfg.NATS.URL, "bizflow-cli")
		if err != nil {
			return WrapExitError(ExitCommandError, "nats", err)
		}
		defer nc.Close()
		if err := natsx.PublishEvent(nc, ev); err != nil {
			return WrapExitError(ExitCommandError, "publish", err)
		}
		if err := nc.Flush(); err != nil {
			return WrapExitError(ExitCommandError, "flush", err)
		}
		subject, _ := natsx.EventSubject(string(ev.Type))
		return formatter.Success(PublishedEvent{Type: ev.Type, TenantID: ev.TenantID, Subject: subject})
	}

	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "startup failed", err)
	}
	defer a.close()

	summary := emit.New(a.engine).Emit(cmd.Context(), ev.Type, ev.TenantID, ev.Data)
	if formatter.Format == "json" {
		return formatter.Success(summary)
	}
	return formatter.Success(summaryView{summary})
}

// buildEvent parses the trigger type and merges --set fields over --data.
func buildEvent(typeArg, tenant, dataJSON string, set []string) (ir.TriggerEvent, error) {
	t, err := ir.ParseTriggerType(strings.ToUpper(typeArg))
	if err != nil {
		return ir.TriggerEvent{}, err
	}
	if dataJSON == "" {
		dataJSON = "{}"
	}
	data, err := ir.DecodeObject([]byte(dataJSON))
	if err != nil {
		return ir.TriggerEvent{}, fmt.Errorf("--data: %w", err)
	}
	for _, kv := range set {
		key, val, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return ir.TriggerEvent{}, fmt.Errorf("--set %q: want key=value", kv)
		}
		data[key] = ir.String(val)
	}
	ev := ir.TriggerEvent{Type: t, TenantID: tenant, Data: data}
	if err := ev.Validate(); err != nil {
		return ir.TriggerEvent{}, err
	}
	return ev, nil
}
