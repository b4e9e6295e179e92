package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"writline/internal/apperr"
	"writline/internal/app"
	"writline/internal/config"
	"writline/internal/domain"
	"writline/internal/engine"
	"writline/internal/events"
)

var rootCmd = &cobra.Command{
	Use:   "writ",
	Short: "Writ case filing CLI",
	Long: `writ files writ cases (FIRs) and their court proceedings against the case-record service.
- Case filing has two steps: Step 1 records the case particulars, Step 2 the first proceeding and its decision.
- A Step 2 draft can be saved and resumed later with 'writ case resume'.
- Filed proceedings are edited with 'writ proceeding edit'; changing the proceeding type deletes the old attachments.
- Every workflow step is journaled locally; view it with 'writ log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		if apperr.IsAuth(err) {
			fmt.Println("the session is no longer valid; set a fresh WRITLINE_TOKEN")
		}
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("WRITLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("base-url", "", "case-record service URL (overrides config)")
	rootCmd.PersistentFlags().String("token", "", "bearer token (prefer WRITLINE_TOKEN)")
	rootCmd.PersistentFlags().String("log-level", "", "development, production or local")
	for _, name := range []string{"workspace", "json", "base-url", "token", "log-level"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(caseCmd())
	rootCmd.AddCommand(proceedingCmd())
	rootCmd.AddCommand(dashboardCmd())
	rootCmd.AddCommand(branchCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(configCmd())
}

// loadConfig reads writline.yml, falling back to defaults, and applies flag
// and environment overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("base-url"); v != "" {
		cfg.Service.BaseURL = v
	}
	if v := viper.GetString("token"); v != "" {
		cfg.Service.Token = v
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Open(ctx, viper.GetString("workspace"), cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	err = fn(ctx, a)
	if apperr.IsAuth(err) {
		a.Logout()
	}
	return err
}

func caseCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "case",
		Short: "File and inspect cases",
	}
	c.AddCommand(caseListCmd())
	c.AddCommand(caseShowCmd())
	c.AddCommand(caseFileCmd())
	c.AddCommand(caseResumeCmd())
	c.AddCommand(caseEditCmd())
	return c
}

func caseListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List cases with their filing progress",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				firs, err := a.Repo.FIRs(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(firs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Writ", "FIR No", "Police Station", "Status", "Progress"})
				for _, f := range firs {
					tw.AppendRow(table.Row{f.ID, f.WritType, f.FIRNumber, f.PoliceStation, f.Status, a.Repo.Completion(ctx, f.ID)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func caseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <fir-id>",
		Short: "Show a case and its proceedings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				fir, err := a.Repo.FIR(ctx, args[0])
				if err != nil {
					return err
				}
				ps, err := a.Repo.ProceedingsByFIR(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"case": fir, "proceedings": ps})
			})
		},
	}
}

func caseFileCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "file",
		Short: "File a new case from a YAML or JSON document",
		Long:  "The document holds 'case' (Step 1) and optionally 'proceeding' (Step 2). The proceeding is saved as a draft unless it sets final: true.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			var doc caseDoc
			if err := decodeDoc(file, &doc); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f := a.Engine.NewFiling()
				defer f.Cancel()
				if err := f.Open(); err != nil {
					return err
				}
				if err := applyCase(f, 1, 1, doc.Case); err != nil {
					return err
				}
				if err := f.SubmitStep1(ctx); err != nil {
					return err
				}
				if doc.Proceeding == nil {
					return printJSON(f.Snapshot())
				}
				return finishStep2(ctx, f, doc.Proceeding)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "case document")
	return cmd
}

func caseResumeCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "resume <fir-id>",
		Short: "Resume Step 2 of a case that has no filed proceeding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var doc *proceedingDoc
			if file != "" {
				doc = &proceedingDoc{}
				if err := decodeDoc(file, doc); err != nil {
					return err
				}
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f := a.Engine.NewFiling()
				defer f.Cancel()
				if err := f.Resume(ctx, args[0]); err != nil {
					return err
				}
				if doc == nil {
					return printJSON(f.Snapshot())
				}
				return finishStep2(ctx, f, doc)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "proceeding document; without it the resumed state is printed")
	return cmd
}

// finishStep2 loads doc into Step 2 and saves it as a draft or, when doc is
// final, submits it.
func finishStep2(ctx context.Context, f *engine.Filing, doc *proceedingDoc) error {
	if doc.Type != "" {
		if err := f.SelectType(doc.Type); err != nil {
			return err
		}
	}
	snap := f.Snapshot()
	if err := applyProceeding(f, snap.Step2.Entries.Len(), doc); err != nil {
		return err
	}
	if !doc.Final {
		saved, err := f.SaveDraft(ctx)
		if err != nil {
			return err
		}
		return printJSON(saved)
	}
	if err := f.RequestFinalSubmit(); err != nil {
		return err
	}
	saved, err := f.ConfirmFinalSubmit(ctx)
	if err != nil {
		return err
	}
	return printJSON(saved)
}

func caseEditCmd() *cobra.Command {
	var file string
	var yes bool
	cmd := &cobra.Command{
		Use:   "edit <fir-id>",
		Short: "Edit the particulars of a case that has a filed proceeding",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			var doc caseDoc
			if err := decodeDoc(file, &doc); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				f := a.Engine.NewFiling()
				defer f.Cancel()
				if err := f.EditCompleted(ctx, args[0]); err != nil {
					return err
				}
				snap := f.Snapshot()
				if err := applyCase(f, len(snap.Case.InvestigatingOfficers), len(snap.Case.Respondents), doc.Case); err != nil {
					return err
				}
				if err := f.SubmitStep1(ctx); err != nil {
					return err
				}
				if !yes {
					fmt.Println("case changes validated; rerun with --yes to save them")
					return nil
				}
				if err := f.ConfirmStep1(ctx); err != nil {
					return err
				}
				return printJSON(f.Snapshot().Case)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "case document")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the update")
	return cmd
}

func proceedingCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "proceeding",
		Short: "Inspect and edit proceedings",
	}
	c.AddCommand(proceedingListCmd())
	c.AddCommand(proceedingEditCmd())
	return c
}

func proceedingListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [fir-id]",
		Short: "List proceedings, optionally of one case",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				var (
					ps  []domain.Proceeding
					err error
				)
				if len(args) == 1 {
					ps, err = a.Repo.ProceedingsByFIR(ctx, args[0])
				} else {
					ps, err = a.Repo.Proceedings(ctx)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ps)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Case", "Seq", "Type", "Draft", "Hearing", "Decision"})
				for _, p := range ps {
					decision := ""
					if p.Decision != nil {
						decision = p.Decision.WritStatus
					}
					tw.AppendRow(table.Row{p.ID, p.FIR, p.Sequence, p.Type, p.Draft, p.Hearing.DateOfHearing, decision})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func proceedingEditCmd() *cobra.Command {
	var file string
	var yes bool
	cmd := &cobra.Command{
		Use:   "edit <fir-id> <proceeding-id>",
		Short: "Edit a filed proceeding from a YAML or JSON document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("--file required")
			}
			var doc proceedingDoc
			if err := decodeDoc(file, &doc); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				pe, err := a.Engine.EditProceeding(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				defer pe.Cancel()
				if doc.Type != "" {
					if err := pe.ChangeType(doc.Type); err != nil {
						return err
					}
				}
				if err := applyProceeding(pe, pe.Snapshot().Form.Entries.Len(), &doc); err != nil {
					return err
				}
				if err := pe.RequestSave(); err != nil {
					return err
				}
				if w := pe.Warning(); w != "" {
					fmt.Println("warning:", w)
					fmt.Println("files to delete:", strings.Join(pe.Snapshot().Form.Deletions, ", "))
				}
				if !yes {
					fmt.Println("edit validated; rerun with --yes to save it")
					return nil
				}
				saved, err := pe.Confirm(ctx)
				if err != nil {
					return err
				}
				return printJSON(saved)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "proceeding document")
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the save")
	return cmd
}

func dashboardCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show case and proceeding totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				d, err := a.Repo.Dashboard(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(d)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Metric", "Count"})
				tw.AppendRow(table.Row{"Cases", d.TotalCases})
				tw.AppendRow(table.Row{"Proceedings", d.TotalProceedings})
				tw.AppendRow(table.Row{"Pending drafts", d.PendingDrafts})
				tw.AppendRow(table.Row{"Without proceeding", d.WithoutProceeding})
				tw.AppendSeparator()
				for _, k := range sortedKeys(d.ByWritType) {
					tw.AppendRow(table.Row{"Writ " + string(k), d.ByWritType[k]})
				}
				tw.AppendSeparator()
				for _, k := range sortedKeys(d.ByStatus) {
					tw.AppendRow(table.Row{"Status " + k, d.ByStatus[k]})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func branchCmd() *cobra.Command {
	b := &cobra.Command{Use: "branch", Short: "Inspect branches"}
	b.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				bs, err := a.Repo.Branches(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(bs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "District"})
				for _, br := range bs {
					tw.AppendRow(table.Row{br.ID, br.Name, br.District})
				}
				tw.Render()
				return nil
			})
		},
	})
	return b
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Inspect the local workflow journal",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var f events.Filter
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail journal events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				if a.Journal == nil {
					return errors.New("journal is disabled in writline.yml")
				}
				evs, err := a.Journal.Tail(ctx, n, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evs)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Case", "Entity", "Outcome"})
				for _, e := range evs {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.FIRID, e.EntityKind + ":" + e.EntityID, e.Outcome})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&f.Type, "type", "", "event type filter")
	cmd.Flags().StringVar(&f.FIRID, "fir", "", "case id filter")
	cmd.Flags().StringVar(&f.SessionID, "session", "", "session id filter")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect writline.yml",
		Long:  "writline.yml sets the case-record service URL and timeout, the cache TTL, the log level and whether the journal is kept. WRITLINE_* environment variables and flags override it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	cfg.AddCommand(configInitCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate writline.yml",
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
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default writline.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s exists; use --force to overwrite", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault(viper.GetString("base-url"))), 0o644); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}

// --- helpers ---

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func sortedKeys[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
