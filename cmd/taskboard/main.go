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

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"taskboard/internal/app"
	"taskboard/internal/config"
	"taskboard/internal/logging"
	taskboardsdk "taskboard/sdk/go"
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Taskboard server and CLI",
	Long: `Taskboard keeps a personal task list behind a small JSON API.
- serve: run the API (sign-up, login, task CRUD, report summary).
- signup / login: create an account and obtain a bearer token.
- task: list, add, update and remove your tasks on a running server.
- report: completion figures over your tasks.
Client commands read the server URL from --server or TASKBOARD_SERVER and
the token from --token or TASKBOARD_TOKEN.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().String("config", "", "config file (default <workspace>/taskboard.yml)")
	rootCmd.PersistentFlags().String("server", "http://127.0.0.1:8080", "API base URL for client commands")
	rootCmd.PersistentFlags().String("token", "", "bearer token for client commands")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	for _, name := range []string{"workspace", "config", "server", "token", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(signupCmd())
	rootCmd.AddCommand(loginCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(reportCmd())
}

// loadConfig reads the config file, applies TASKBOARD_* overrides and validates.
func loadConfig() (*config.Config, error) {
	workspace := viper.GetString("workspace")
	path := viper.GetString("config")
	if path == "" {
		path = config.Path(workspace)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	applyEnv(cfg, workspace)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *config.Config, workspace string) {
	if cfg.Store.SQLite.Workspace == "" || cfg.Store.SQLite.Workspace == "." {
		cfg.Store.SQLite.Workspace = workspace
	}
	overrides := map[string]*string{
		"jwt_secret":                &cfg.Identity.JWTSecret,
		"supabase_url":              &cfg.Identity.Supabase.URL,
		"supabase_service_role_key": &cfg.Identity.Supabase.ServiceRoleKey,
		"supabase_anon_key":         &cfg.Identity.Supabase.AnonKey,
		"redis_addr":                &cfg.Store.Redis.Addr,
		"redis_password":            &cfg.Store.Redis.Password,
		"store_driver":              &cfg.Store.Driver,
		"identity_provider":         &cfg.Identity.Provider,
	}
	for key, dst := range overrides {
		if v := viper.GetString(key); v != "" {
			*dst = v
		}
	}
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Server.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				cfg.Server.BasePath = basePath
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()
			srv := a.HTTPServer()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.WithError(err).Warn("graceful shutdown failed")
				}
			}()
			logger.WithFields(logrus.Fields{
				"addr":     cfg.Server.Addr,
				"store":    cfg.Store.Driver,
				"identity": cfg.Identity.Provider,
			}).Infof("serving taskboard API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)", cfg.Server.Addr, cfg.Server.BasePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path")
	return cmd
}

func configCmd() *cobra.Command {
	cfgCmd := &cobra.Command{Use: "config", Short: "Inspect or create the config file"}
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default taskboard.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := viper.GetString("config")
			if path == "" {
				path = config.Path(viper.GetString("workspace"))
			}
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o600); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	})
	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(redact(*cfg))
		},
	})
	return cfgCmd
}

func redact(cfg config.Config) config.Config {
	for _, s := range []*string{
		&cfg.Identity.JWTSecret,
		&cfg.Identity.Supabase.ServiceRoleKey,
		&cfg.Identity.Supabase.AnonKey,
		&cfg.Store.Redis.Password,
	} {
		if *s != "" {
			*s = "********"
		}
	}
	return cfg
}

func withClient(ctx context.Context, fn func(context.Context, *taskboardsdk.Client) error) error {
	c := taskboardsdk.New(viper.GetString("server"))
	c.Token = viper.GetString("token")
	return fn(ctx, c)
}

func signupCmd() *cobra.Command {
	var name, email, password string
	cmd := &cobra.Command{
		Use:   "signup",
		Short: "Create an account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				user, err := c.Signup(ctx, name, email, password)
				if err != nil {
					return err
				}
				return printUser(user)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func loginCmd() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and print a bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				session, err := c.Login(ctx, email, password)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(session)
				}
				fmt.Println(session.AccessToken)
				fmt.Fprintf(os.Stderr, "signed in as %s until %s; export TASKBOARD_TOKEN to use it\n",
					session.User.Email, session.ExpiresAt.Local().Format("2006-01-02 15:04"))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address")
	cmd.Flags().StringVar(&password, "password", "", "password")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{Use: "task", Short: "Manage your tasks"}
	t.AddCommand(taskListCmd())
	t.AddCommand(taskAddCmd())
	t.AddCommand(taskUpdateCmd())
	t.AddCommand(taskRemoveCmd())
	return t
}

func taskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				items, err := c.ListTasks(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				renderTasks(items)
				return nil
			})
		},
	}
}

func renderTasks(items []taskboardsdk.Task) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Title", "Status", "Priority", "Due", "Created"})
	for _, t := range items {
		tw.AppendRow(table.Row{t.ID, t.Title, t.Status, t.Priority, t.DueDate, t.CreatedAt})
	}
	tw.Render()
}

func taskAddCmd() *cobra.Command {
	var in taskboardsdk.TaskInput
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				t, err := c.CreateTask(ctx, in)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&in.Title, "title", "", "task title")
	cmd.Flags().StringVar(&in.Description, "description", "", "description")
	cmd.Flags().StringVar(&in.Status, "status", "pending", "pending|in-progress|completed")
	cmd.Flags().StringVar(&in.Priority, "priority", "medium", "low|medium|high")
	cmd.Flags().StringVar(&in.DueDate, "due", "", "due date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("due")
	return cmd
}

func taskUpdateCmd() *cobra.Command {
	var title, description, status, priority, due string
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch taskboardsdk.TaskPatch
			flags := cmd.Flags()
			if flags.Changed("title") {
				patch.Title = &title
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			if flags.Changed("status") {
				patch.Status = &status
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("due") {
				patch.DueDate = &due
			}
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				t, err := c.UpdateTask(ctx, args[0], patch)
				if err != nil {
					return err
				}
				return printTask(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "task title")
	cmd.Flags().StringVar(&description, "description", "", "description")
	cmd.Flags().StringVar(&status, "status", "", "pending|in-progress|completed")
	cmd.Flags().StringVar(&priority, "priority", "", "low|medium|high")
	cmd.Flags().StringVar(&due, "due", "", "due date (YYYY-MM-DD)")
	return cmd
}

func taskRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"delete"},
		Short:   "Delete a task",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				if err := c.DeleteTask(ctx, args[0]); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]bool{"success": true})
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	}
}

func printTask(t taskboardsdk.Task) error {
	if viper.GetBool("json") {
		return printJSON(t)
	}
	renderTasks([]taskboardsdk.Task{t})
	return nil
}

func reportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Show completion figures over your tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withClient(cmd.Context(), func(ctx context.Context, c *taskboardsdk.Client) error {
				s, err := c.Summary(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(s)
				}
				renderSummary(s)
				return nil
			})
		},
	}
}

func renderSummary(s taskboardsdk.Summary) {
	overview := table.NewWriter()
	overview.SetOutputMirror(os.Stdout)
	overview.SetTitle("Overview")
	overview.AppendRow(table.Row{"Total", s.Total})
	overview.AppendRow(table.Row{"Completion rate", fmt.Sprintf("%d%%", s.CompletionRate)})
	overview.AppendRow(table.Row{"Open high priority", s.OpenHighPriority})
	overview.AppendRow(table.Row{"Overdue", s.Overdue})
	overview.Render()

	status := table.NewWriter()
	status.SetOutputMirror(os.Stdout)
	status.SetTitle("By status")
	status.AppendHeader(table.Row{"Status", "Count"})
	for _, sc := range s.ByStatus {
		status.AppendRow(table.Row{sc.Status, sc.Count})
	}
	status.Render()

	priority := table.NewWriter()
	priority.SetOutputMirror(os.Stdout)
	priority.SetTitle("By priority")
	priority.AppendHeader(table.Row{"Priority", "Total", "Completed"})
	for _, pc := range s.ByPriority {
		priority.AppendRow(table.Row{pc.Priority, pc.Total, pc.Completed})
	}
	priority.Render()

	if len(s.ByMonth) == 0 {
		return
	}
	months := table.NewWriter()
	months.SetOutputMirror(os.Stdout)
	months.SetTitle("By month created")
	months.AppendHeader(table.Row{"Month", "Created", "Completed"})
	for _, mc := range s.ByMonth {
		months.AppendRow(table.Row{mc.Month, mc.Created, mc.Completed})
	}
	months.Render()
}

func printUser(u taskboardsdk.User) error {
	if viper.GetBool("json") {
		return printJSON(u)
	}
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"ID", "Name", "Email"})
	tw.AppendRow(table.Row{u.ID, u.Name, u.Email})
	tw.Render()
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
