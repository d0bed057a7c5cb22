package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"riskline/internal/app"
	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/domain"
	"riskline/internal/engine"
	"riskline/internal/repo"
	"riskline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "rl",
	Short: "Riskline CLI",
	Long: `Riskline scores delivery risk for projects and simulates what to do about it.
Core concepts:
- Workspace: a directory holding riskline.yml and the .riskline database.
- Dataset: projects, members and tickets imported from YAML or JSON (rl import).
- Analysis: a risk score from blocked, overdue and high-priority tickets plus deadline proximity, with Monte Carlo estimates for each intervention.
- Debate: risk, finance and constraint reviewers vote on the top recommendation.
- Team simulation: what adding, removing or transferring a role does to risk and cost.
- History: every analysis is recorded as a snapshot (rl history).`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println("error:", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("RISKLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().Int64("seed", 0, "simulation seed (0 keeps the configured seed)")
	rootCmd.PersistentFlags().Int("trials", 0, "Monte Carlo trials (0 keeps the configured count)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("seed", rootCmd.PersistentFlags().Lookup("seed"))
	_ = viper.BindPFlag("trials", rootCmd.PersistentFlags().Lookup("trials"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(analyzeCmd())
	rootCmd.AddCommand(debateCmd())
	rootCmd.AddCommand(simulateCmd())
	rootCmd.AddCommand(rolesCmd())
	rootCmd.AddCommand(historyCmd())
	rootCmd.AddCommand(eventsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(tokenCmd())
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create riskline.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				out := map[string]string{"config": path, "database": db.Path(workspace)}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				fmt.Printf("Wrote %s\nDatabase at %s\n", out["config"], out["database"])
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing riskline.yml")
	return cmd
}

func importCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Import projects, members and tickets from YAML or JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := repo.LoadDataset(file)
			if err != nil {
				return err
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Import(ctx, ds)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d projects, %d members, %d tickets\n", res.Projects, res.Members, res.Tickets)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "dataset file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Inspect projects"}
	prj.AddCommand(projectListCmd())
	return prj
}

func projectListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListProjects(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "Name", "Team", "Deadline"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.ID, p.Name, p.TeamName, p.Deadline})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func analyzeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <project-id>",
		Short: "Score delivery risk and compare interventions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				a, err := ws.Engine.Analyze(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(a)
				}
				printAnalysis(a)
				return nil
			})
		},
	}
}

func printAnalysis(a engine.Analysis) {
	team := a.TeamName
	if team == "" {
		team = "unassigned"
	}
	fmt.Printf("Project: %s (%s), team %s\n", a.ProjectName, a.ProjectID, team)
	fmt.Printf("Risk: %.2f %s\n", a.RiskScore, a.RiskLevel)
	fmt.Printf("Reason (%s): %s\n", a.ExplanationSource, a.PrimaryReason)
	for _, s := range a.SupportingSignals {
		fmt.Printf("  - %s\n", s)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Intervention", "Risk Reduction", "Cost", "Feasible", "Recommended"})
	for _, c := range a.DecisionComparison {
		tw.AppendRow(table.Row{c.Action, fmt.Sprintf("%.0f%%", c.RiskReduction*100), c.Cost, c.Feasible, c.Recommended})
	}
	tw.Render()
	for _, w := range a.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
}

func debateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "debate <project-id>",
		Short: "Let the reviewers debate the top recommendation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.Debate(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Agent", "Vote", "Confidence", "Claim"})
				for _, turn := range res.Turns {
					tw.AppendRow(table.Row{turn.AgentName, turn.Vote, fmt.Sprintf("%.2f", turn.Confidence), turn.Claim})
				}
				tw.Render()
				fmt.Printf("Consensus: %s\n", res.Consensus)
				return nil
			})
		},
	}
}

func simulateCmd() *cobra.Command {
	sim := &cobra.Command{Use: "simulate", Short: "Simulate staffing changes"}
	sim.AddCommand(simulateTeamCmd())
	sim.AddCommand(simulateBatchCmd())
	return sim
}

func simulateTeamCmd() *cobra.Command {
	var m domain.TeamMutation
	var action string
	cmd := &cobra.Command{
		Use:   "team <project-id>",
		Short: "Simulate one staffing change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m.Action = domain.TeamAction(action)
			m.ProjectID = args[0]
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.SimulateMutation(ctx, m, baselineFlag(cmd))
				if err != nil {
					return err
				}
				return printTeamResults([]domain.TeamSimulationResult{res})
			})
		},
	}
	cmd.Flags().StringVar(&action, "action", "add", "add, remove or transfer")
	cmd.Flags().StringVar(&m.Role, "role", "", "role profile name (see rl roles)")
	cmd.Flags().StringVar(&m.MemberName, "member", "", "member name")
	cmd.Flags().StringVar(&m.SourceTeam, "source-team", "", "team a transferred member leaves")
	cmd.Flags().Float64("baseline", 0, "baseline risk score in [0,1] (default: estimated)")
	_ = cmd.MarkFlagRequired("role")
	return cmd
}

func simulateBatchCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "batch <project-id>",
		Short: "Simulate and rank mutations listed in a YAML or JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(file)
			if err != nil {
				return err
			}
			var ms []domain.TeamMutation
			if err := yaml.Unmarshal(data, &ms); err != nil {
				return fmt.Errorf("parse mutations: %w", err)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				res, err := ws.Engine.SimulateBatch(ctx, args[0], ms, baselineFlag(cmd))
				if err != nil {
					return err
				}
				return printTeamResults(res)
			})
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "mutations file")
	cmd.Flags().Float64("baseline", 0, "baseline risk score in [0,1] (default: estimated)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// baselineFlag is nil unless --baseline was given.
func baselineFlag(cmd *cobra.Command) *float64 {
	if !cmd.Flags().Changed("baseline") {
		return nil
	}
	v, err := cmd.Flags().GetFloat64("baseline")
	if err != nil {
		return nil
	}
	return &v
}

func printTeamResults(results []domain.TeamSimulationResult) error {
	if viper.GetBool("json") {
		return printJSON(results)
	}
	tw := newTable()
	tw.AppendHeader(table.Row{"Action", "Role", "Baseline", "Projected", "Delta", "Cost", "Confidence", "Feasible"})
	for _, r := range results {
		tw.AppendRow(table.Row{
			r.Mutation.Action, r.Mutation.Role,
			fmt.Sprintf("%.2f", r.BaselineRisk), fmt.Sprintf("%.2f", r.ProjectedRisk), fmt.Sprintf("%+.2f", r.RiskDelta),
			fmt.Sprintf("%.0f", r.CostDelta), fmt.Sprintf("%.2f", r.Confidence), r.Feasible,
		})
	}
	tw.Render()
	for _, r := range results {
		fmt.Printf("%s %s: %s\n", r.Mutation.Action, r.Mutation.Role, r.Reasoning)
		if r.Warning != "" {
			fmt.Printf("  warning: %s\n", r.Warning)
		}
	}
	return nil
}

func rolesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "roles",
		Short: "List role profiles used by team simulations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				roles := ws.Engine.Roles()
				if viper.GetBool("json") {
					return printJSON(roles)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Role", "Velocity", "Ramp-up Days", "Cost/Day", "Unblocks"})
				for _, name := range domain.RoleNames(roles) {
					p := roles[name]
					tw.AppendRow(table.Row{name, fmt.Sprintf("%+.0f%%", p.VelocityBoost*100), p.RampUpDays, p.CostPerDay, fmt.Sprintf("%.0f%%", p.BlockedResolution*100)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <project-id>",
		Short: "Show recorded risk snapshots, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Engine.Snapshots(ctx, args[0], limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"Created", "Score", "Level", "Blocked", "Overdue", "Tickets"})
				for _, s := range items {
					tw.AppendRow(table.Row{s.CreatedAt, fmt.Sprintf("%.2f", s.RiskScore), s.RiskLevel, s.BlockedCount, s.OverdueCount, s.TotalTickets})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of snapshots")
	return cmd
}

func eventsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "events [project-id]",
		Short: "Tail the event log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := ""
			if len(args) == 1 {
				projectID = args[0]
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				items, err := ws.Repo.ListEvents(ctx, projectID, limit)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable()
				tw.AppendHeader(table.Row{"ID", "TS", "Type", "Project", "Entity", "Payload"})
				for _, e := range items {
					tw.AppendRow(table.Row{e.ID, e.TS, e.Type, e.ProjectID, e.EntityKind + ":" + e.EntityID, e.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of events")
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect riskline.yml",
		Long:  "Config holds risk weights, constraint thresholds, intervention distributions, role profiles, finance rates and the explainer provider. Defaults apply when riskline.yml is absent.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	}
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate riskline.yml",
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

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				authCfg := server.AuthConfig{JWTSecret: viper.GetString("jwt-secret")}
				if authCfg.JWTSecret == "" {
					ws.Logger.Warn("RISKLINE_JWT_SECRET not set, API is unauthenticated")
				}
				handler, err := server.New(server.Config{
					Engine:   ws.Engine,
					Store:    ws.Repo,
					BasePath: basePath,
					Auth:     authCfg,
					Logger:   ws.Logger,
				})
				if err != nil {
					return err
				}
				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				fmt.Printf("Serving Riskline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().String("jwt-secret", "", "HS256 secret for bearer auth (env RISKLINE_JWT_SECRET)")
	_ = viper.BindPFlag("jwt-secret", cmd.Flags().Lookup("jwt-secret"))
	return cmd
}

func tokenCmd() *cobra.Command {
	var subject, secret string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("jwt-secret") {
				secret = viper.GetString("jwt-secret")
			}
			token, err := server.SignToken(secret, subject, roles, ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject")
	cmd.Flags().StringVar(&secret, "jwt-secret", "", "HS256 secret (env RISKLINE_JWT_SECRET)")
	cmd.Flags().StringSliceVar(&roles, "roles", nil, "roles claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime (0 never expires)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// --- helpers ---

func workspaceOptions() app.Options {
	opts := app.Options{
		Workspace: viper.GetString("workspace"),
		LogLevel:  viper.GetString("log-level"),
		Trials:    viper.GetInt("trials"),
	}
	if viper.IsSet("seed") && viper.GetInt64("seed") != 0 {
		seed := viper.GetInt64("seed")
		opts.Seed = &seed
	}
	return opts
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	ws, err := app.Open(ctx, workspaceOptions())
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func newTable() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.SetStyle(table.StyleLight)
	return tw
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
