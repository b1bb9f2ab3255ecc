package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/tallesnicacio/bizflow-pro-sub000/internal/compiler"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/ir"
	"github.com/tallesnicacio/bizflow-pro-sub000/internal/store"
)

// RulesOptions holds flags shared by the rules subcommands.
type RulesOptions struct {
	*RootOptions
	Tenant string
}

// ImportedRule reports what import did with one rule.
type ImportedRule struct {
	Key    string `json:"key"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Action string `json:"action"` // "created" | "replaced"
}

// ImportResult is the result of rules import.
type ImportResult struct {
	Tenant   string         `json:"tenant"`
	Created  int            `json:"created"`
	Replaced int            `json:"replaced"`
	Rules    []ImportedRule `json:"rules"`
}

// RenderText implements TextRenderer.
func (r ImportResult) RenderText(w io.Writer) {
	for _, rule := range r.Rules {
		fmt.Fprintf(w, "  %-8s %s %s (%s)\n", rule.Action, rule.ID, rule.Key, rule.Name)
	}
	fmt.Fprintf(w, "✓ Imported %d rule(s) for tenant %s: %d created, %d replaced\n",
		len(r.Rules), r.Tenant, r.Created, r.Replaced)
}

// ruleList renders stored rules.
type ruleList []ir.Rule

// RenderText implements TextRenderer.
func (l ruleList) RenderText(w io.Writer) {
	if len(l) == 0 {
		fmt.Fprintln(w, "No rules.")
		return
	}
	for _, r := range l {
		state := "active"
		if !r.IsActive {
			state = "inactive"
		}
		trigger := "-"
		if r.Trigger != nil {
			trigger = string(r.Trigger.Type)
		}
		fmt.Fprintf(w, "%s  %-8s  %-22s  %d action(s)  %s\n", r.ID, state, trigger, len(r.Actions), r.Name)
	}
}

// NewRulesCommand creates the rules command group.
func NewRulesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RulesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "rules",
		Short: "Manage stored rules",
	}
	cmd.PersistentFlags().StringVarP(&opts.Tenant, "tenant", "t", "", "tenant ID")

	cmd.AddCommand(newRulesImportCommand(opts))
	cmd.AddCommand(newRulesListCommand(opts))
	cmd.AddCommand(newRulesDeleteCommand(opts))
	cmd.AddCommand(newRulesActiveCommand(opts))
	return cmd
}

func newRulesImportCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <rules-path>",
		Short: "Compile CUE rules and store them",
		Long: `Compile, validate and store CUE rules.

Rule IDs derive from tenant and rule key, so importing the same files
again replaces the stored rules instead of duplicating them. Rules
without a tenant field take --tenant. Nothing is written unless every
rule is valid.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := opts.formatter(cmd)

			loadResult, loadErrs := LoadRules(args[0], LoadModeCollectAll)
			if loadResult == nil {
				return outputValidateError(formatter, loadErrorCode(loadErrs[0]), loadErrs[0].Error())
			}
			if verrs := loadErrorsToValidation(loadErrs); len(verrs) > 0 {
				return outputValidateError(formatter, verrs[0].Code, verrs[0].Error())
			}

			backend, closeFn, err := opts.openRules(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			result, err := importRules(cmd.Context(), backend, loadResult.Rules, opts.Tenant)
			if err != nil {
				var verr compiler.ValidationError
				if errors.As(err, &verr) {
					return outputValidateError(formatter, verr.Code, err.Error())
				}
				_ = formatter.Error(ErrCodeStore, err.Error(), nil)
				return WrapExitError(ExitCommandError, "import failed", err)
			}
			return formatter.Success(result)
		},
	}
}

func newRulesListCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List a tenant's rules",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireTenant(); err != nil {
				return err
			}
			backend, closeFn, err := opts.openRules(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			rules, err := backend.ListRules(cmd.Context(), opts.Tenant)
			if err != nil {
				return WrapExitError(ExitCommandError, "list rules", err)
			}
			if opts.Format == "json" {
				return opts.formatter(cmd).Success(rules)
			}
			return opts.formatter(cmd).Success(ruleList(rules))
		},
	}
}

func newRulesDeleteCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <rule-id>",
		Short:         "Delete a rule with its trigger and actions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireTenant(); err != nil {
				return err
			}
			backend, closeFn, err := opts.openRules(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := backend.DeleteRule(cmd.Context(), opts.Tenant, args[0]); err != nil {
				return ruleNotFoundOr(err, args[0])
			}
			return opts.formatter(cmd).Success(fmt.Sprintf("✓ Deleted rule %s", args[0]))
		},
	}
}

func newRulesActiveCommand(opts *RulesOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "set-active <rule-id> <true|false>",
		Short:         "Activate or deactivate a rule",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.requireTenant(); err != nil {
				return err
			}
			active, err := strconv.ParseBool(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "active must be true or false", err)
			}
			backend, closeFn, err := opts.openRules(cmd.Context())
			if err != nil {
				return err
			}
			defer closeFn()

			if err := backend.SetActive(cmd.Context(), opts.Tenant, args[0], active); err != nil {
				return ruleNotFoundOr(err, args[0])
			}
			return opts.formatter(cmd).Success(fmt.Sprintf("✓ Rule %s active=%t", args[0], active))
		},
	}
}

// importRules validates every loaded rule, then creates or replaces each
// one under its key-derived ID. No rule is written when any is invalid.
func importRules(ctx context.Context, rules store.Rules, loaded []LoadedRule, tenant string) (ImportResult, error) {
	prepared := make([]ir.Rule, 0, len(loaded))
	for _, lr := range loaded {
		r := lr.Rule
		if r.TenantID == "" {
			r.TenantID = tenant
		}
		if r.TenantID == "" {
			return ImportResult{}, fmt.Errorf("rule %q: no tenant field and no --tenant", lr.Key)
		}
		if tenant != "" && r.TenantID != tenant {
			return ImportResult{}, fmt.Errorf("rule %q: declares tenant %q, importing for %q", lr.Key, r.TenantID, tenant)
		}
		if verrs := compiler.Validate(r); len(verrs) > 0 {
			return ImportResult{}, fmt.Errorf("rule %q: %w", lr.Key, verrs[0])
		}
		r.ID = compiler.RuleID(r.TenantID, lr.Key)
		prepared = append(prepared, r)
	}

	result := ImportResult{Tenant: tenant, Rules: []ImportedRule{}}
	for i := range prepared {
		r := &prepared[i]
		action := "replaced"
		_, err := rules.GetRule(ctx, r.TenantID, r.ID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			action = "created"
			err = rules.CreateRule(ctx, r)
		case err == nil:
			err = rules.ReplaceRule(ctx, r)
		}
		if err != nil {
			return result, fmt.Errorf("store rule %q: %w", loaded[i].Key, err)
		}

		if action == "created" {
			result.Created++
		} else {
			result.Replaced++
		}
		result.Rules = append(result.Rules, ImportedRule{Key: loaded[i].Key, ID: r.ID, Name: r.Name, Action: action})
		if result.Tenant == "" {
			result.Tenant = r.TenantID
		}
	}
	return result, nil
}

func (o *RulesOptions) requireTenant() error {
	if o.Tenant == "" {
		return NewExitError(ExitCommandError, "--tenant is required")
	}
	return nil
}

// openRules opens the configured store.
func (o *RulesOptions) openRules(ctx context.Context) (store.Backend, func() error, error) {
	cfg, err := o.loadConfig()
	if err != nil {
		return nil, nil, err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open store", err)
	}
	return backend, backend.Close, nil
}

func ruleNotFoundOr(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewExitError(ExitFailure, fmt.Sprintf("rule %s not found", id))
	}
	return WrapExitError(ExitCommandError, "store", err)
}

func loadErrorCode(err error) string {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code
	}
	return ErrCodeGeneric
}
