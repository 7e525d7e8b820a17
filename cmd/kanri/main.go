package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/fang"
	"github.com/google/uuid"
	serveradapter "github.com/hylla/kanri/internal/adapters/server"
	servercommon "github.com/hylla/kanri/internal/adapters/server/common"
	"github.com/hylla/kanri/internal/adapters/server/mcpapi"
	"github.com/hylla/kanri/internal/adapters/storage/sqlite"
	"github.com/hylla/kanri/internal/api"
	"github.com/hylla/kanri/internal/app"
	"github.com/hylla/kanri/internal/backend"
	"github.com/hylla/kanri/internal/config"
	"github.com/hylla/kanri/internal/domain"
	"github.com/hylla/kanri/internal/platform"
	"github.com/hylla/kanri/internal/session"
	"github.com/hylla/kanri/internal/tui"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

var version = "dev"

// program is the part of *tea.Program the TUI command needs.
type program interface {
	Run() (tea.Model, error)
}

// programFactory builds the TUI program. Tests replace it.
var programFactory = func(m tea.Model) program {
	return tea.NewProgram(m)
}

// serveCommandRunner starts the composed HTTP server.
var serveCommandRunner = func(ctx context.Context, cfg serveradapter.Config, deps serveradapter.Dependencies) error {
	return serveradapter.Run(ctx, cfg, deps)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		// fang already printed the error.
		os.Exit(1)
	}
}

// run builds the command tree and executes args.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	root := newRootCommand(stderr)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	return fang.Execute(ctx, root, fang.WithVersion(version))
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	dbPath     string
	appName    string
	apiURL     string
	format     string
	devMode    bool
	stderr     io.Writer
}

func newRootCommand(stderr io.Writer) *cobra.Command {
	opts := &rootOptions{stderr: stderr, appName: platform.DefaultAppName}
	if envApp := strings.TrimSpace(os.Getenv("KANRI_APP_NAME")); envApp != "" {
		opts.appName = envApp
	}
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("KANRI_DEV_MODE"); ok {
		defaultDevMode = envDev
	}

	root := &cobra.Command{
		Use:   "kanri",
		Short: "Terminal kanban client for agile project boards",
		Long: "kanri signs in to a project-management backend, lists projects, and opens\n" +
			"their kanban boards. Without a subcommand it starts the interactive board.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTUI(cmd.Context(), opts)
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "path to config TOML")
	flags.StringVar(&opts.dbPath, "db", "", "path to sqlite database")
	flags.StringVar(&opts.appName, "app", opts.appName, "application name for config/data path resolution")
	flags.StringVar(&opts.apiURL, "api-url", "", "backend base URL (overrides api.base_url)")
	flags.StringVarP(&opts.format, "format", "o", "text", "output format: text, json, or yaml")
	flags.BoolVar(&opts.devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")

	root.AddCommand(
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newProjectsCommand(opts),
		newBoardCommand(opts),
		newMoveCommand(opts),
		newStoryCommand(opts),
		newTaskCommand(opts),
		newProgressCommand(opts),
		newSettingsCommand(opts),
		newPasswordCommand(opts),
		newServeCommand(opts),
		newMCPCommand(opts),
		newPathsCommand(opts),
	)
	return root
}

// runtimeEnv is the resolved per-invocation state.
type runtimeEnv struct {
	appName string
	cfg     config.Config
	format  outputFormat
	logger  *runtimeLogger
	repo    *sqlite.Repository
	stderr  io.Writer
}

// resolvePaths applies the app name and dev mode.
func (o *rootOptions) resolvePaths() (platform.Paths, error) {
	return platform.DefaultPathsWithOptions(platform.Options{
		AppName: o.appName,
		DevMode: o.devMode,
	})
}

// open resolves paths and config, builds the logger, and opens sqlite.
func (o *rootOptions) open(command string) (*runtimeEnv, error) {
	format, err := parseOutputFormat(o.format)
	if err != nil {
		return nil, err
	}
	paths, err := o.resolvePaths()
	if err != nil {
		return nil, err
	}

	configPath := strings.TrimSpace(o.configPath)
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("KANRI_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	dbPath := strings.TrimSpace(o.dbPath)
	if dbPath == "" {
		dbPath = strings.TrimSpace(os.Getenv("KANRI_DB_PATH"))
	}
	dbOverridden := dbPath != ""
	if !dbOverridden {
		dbPath = paths.DBPath
	}

	cfg, err := config.Load(configPath, config.Default(dbPath))
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", configPath, err)
	}
	if dbOverridden {
		cfg.Database.Path = dbPath
	}
	apiURL := strings.TrimSpace(o.apiURL)
	if apiURL == "" {
		apiURL = strings.TrimSpace(os.Getenv("KANRI_API_URL"))
	}
	if apiURL != "" {
		cfg.API.BaseURL = apiURL
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newRuntimeLogger(o.stderr, o.appName, o.devMode, cfg.Logging, time.Now)
	if err != nil {
		return nil, fmt.Errorf("configure runtime logger: %w", err)
	}
	env := &runtimeEnv{
		appName: o.appName,
		cfg:     cfg,
		format:  format,
		logger:  logger,
		stderr:  o.stderr,
	}
	logger.Debug("startup configuration resolved", "app", o.appName, "dev_mode", o.devMode, "command", command)
	logger.Debug("configuration loaded", "config_path", configPath, "data_dir", paths.DataDir, "db_path", cfg.Database.Path, "api", cfg.API.BaseURL)
	if devPath := logger.DevLogPath(); devPath != "" {
		logger.Debug("dev file logging enabled", "path", devPath)
	}

	repo, err := sqlite.Open(cfg.Database.Path)
	if err != nil {
		logger.Error("sqlite open failed", "db_path", cfg.Database.Path, "err", err)
		_ = logger.Close()
		return nil, fmt.Errorf("open sqlite repository: %w", err)
	}
	env.repo = repo
	return env, nil
}

// Close releases sqlite and the log file.
func (e *runtimeEnv) Close() {
	if e == nil {
		return
	}
	if e.repo != nil {
		if err := e.repo.Close(); err != nil {
			e.logger.Warn("sqlite close failed", "db_path", e.cfg.Database.Path, "err", err)
		}
	}
	if err := e.logger.Close(); err != nil && e.logger.shouldLogToSink(e.logger.consoleSink) {
		_, _ = fmt.Fprintf(e.stderr, "warning: close runtime log sink: %v\n", err)
	}
}

// clientService restores the stored session and wires the API client to the app service.
func (e *runtimeEnv) clientService(ctx context.Context) (*app.Service, error) {
	sess := session.New(e.repo)
	if err := sess.Restore(ctx); err != nil {
		return nil, err
	}
	var svc *app.Service
	client, err := api.New(api.Config{
		BaseURL:          e.cfg.API.BaseURL,
		V1Prefix:         e.cfg.API.V1Prefix,
		APIPrefix:        e.cfg.API.APIPrefix,
		Timeout:          e.cfg.API.Timeout.Std(),
		PrehashPasswords: e.cfg.Auth.PrehashPasswords,
		UserAgent:        "kanri/" + version,
	}, sess,
		api.WithLogger(e.logger),
		api.WithUnauthorizedHandler(func(statusErr *api.StatusError) {
			svc.HandleUnauthorized(statusErr)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("configure api client: %w", err)
	}
	svc = app.NewService(client, sess, e.logger, app.ServiceConfig{PageSize: e.cfg.API.PageSize})
	e.logger.Debug("application service initialized", "signed_in", sess.Authenticated())
	return svc, nil
}

// withService opens the runtime and runs fn with a client-side service, logging the command flow.
func (o *rootOptions) withService(cmd *cobra.Command, name string, fn func(context.Context, *runtimeEnv, *app.Service) error) error {
	env, err := o.open(name)
	if err != nil {
		return err
	}
	defer env.Close()

	ctx := cmd.Context()
	svc, err := env.clientService(ctx)
	if err != nil {
		return err
	}
	env.logger.Debug("command flow start", "command", name)
	if err := fn(ctx, env, svc); err != nil {
		env.logger.Debug("command flow failed", "command", name, "err", err)
		return err
	}
	env.logger.Debug("command flow complete", "command", name)
	return nil
}

func runTUI(ctx context.Context, opts *rootOptions) error {
	env, err := opts.open("tui")
	if err != nil {
		return err
	}
	defer env.Close()

	svc, err := env.clientService(ctx)
	if err != nil {
		return err
	}
	// Runtime logs stay in the dev-file sink while the board owns the terminal.
	env.logger.SetConsoleEnabled(false)
	m := tui.NewModel(
		svc,
		tui.WithCompact(env.cfg.Board.Compact),
		tui.WithPollInterval(env.cfg.Board.PollInterval.Std()),
		tui.WithRequestTimeout(env.cfg.API.Timeout.Std()),
	)
	env.logger.Info("starting tui program loop")
	if _, err := programFactory(m).Run(); err != nil {
		env.logger.Error("tui program terminated with error", "err", err)
		return fmt.Errorf("run tui program: %w", err)
	}
	env.logger.Info("command flow complete", "command", "tui")
	return nil
}

func newLoginCommand(opts *rootOptions) *cobra.Command {
	var username, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "login", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				reader := bufio.NewReader(cmd.InOrStdin())
				var err error
				if strings.TrimSpace(username) == "" {
					if username, err = promptLine(reader, cmd.ErrOrStderr(), "Username: "); err != nil {
						return err
					}
				}
				if password == "" {
					if password, err = promptLine(reader, cmd.ErrOrStderr(), "Password: "); err != nil {
						return err
					}
				}
				user, err := svc.Login(ctx, username, password)
				if err != nil {
					return fmt.Errorf("login: %w", err)
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "signed in as %s (%s)\n", user.Username, user.DisplayName())
				return err
			})
		},
	}
	cmd.Flags().StringVarP(&username, "username", "u", "", "account username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	return cmd
}

func newLogoutCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "logout", func(ctx context.Context, _ *runtimeEnv, svc *app.Service) error {
				if err := svc.Logout(ctx); err != nil {
					return fmt.Errorf("logout: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "signed out")
				return err
			})
		},
	}
}

func newWhoamiCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Print the signed-in user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "whoami", func(_ context.Context, env *runtimeEnv, svc *app.Service) error {
				user, ok := svc.CurrentUser()
				if !ok {
					return app.ErrNotAuthenticated
				}
				return writeOutput(cmd.OutOrStdout(), env.format, user, func(w io.Writer) error {
					_, err := fmt.Fprintf(w, "%s (%s) id=%d\n", user.Username, user.DisplayName(), user.ID)
					return err
				})
			})
		},
	}
}

func newProjectsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "projects",
		Short: "List, create, and configure projects",
	}

	var page int
	list := &cobra.Command{
		Use:   "list",
		Short: "List one page of projects",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "projects list", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				result, err := servercommon.NewAppServiceAdapter(svc).ListProjects(ctx, max(page-1, 0))
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), env.format, result, func(w io.Writer) error {
					return renderProjectList(w, result)
				})
			})
		},
	}
	list.Flags().IntVar(&page, "page", 1, "page number, starting at 1")

	var draft domain.ProjectDraft
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a project with the default columns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "projects create", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				project, err := svc.CreateProject(ctx, draft)
				if err != nil {
					return fmt.Errorf("create project: %w", err)
				}
				return writeProject(cmd.OutOrStdout(), env.format, "created", project)
			})
		},
	}
	addProjectDraftFlags(create, &draft)

	var dupDraft domain.ProjectDraft
	duplicate := &cobra.Command{
		Use:   "duplicate <project-id>",
		Short: "Copy a project's columns and modules into a new project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sourceID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			return opts.withService(cmd, "projects duplicate", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				project, err := svc.DuplicateProject(ctx, sourceID, dupDraft)
				if err != nil {
					return fmt.Errorf("duplicate project: %w", err)
				}
				return writeProject(cmd.OutOrStdout(), env.format, "duplicated", project)
			})
		},
	}
	addProjectDraftFlags(duplicate, &dupDraft)

	var enable, disable []string
	modules := &cobra.Command{
		Use:   "modules <project-id>",
		Short: "Show or toggle a project's modules",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			return opts.withService(cmd, "projects modules", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				current, err := svc.ProjectModules(ctx, projectID)
				if err != nil {
					return fmt.Errorf("load modules: %w", err)
				}
				if len(enable) > 0 || len(disable) > 0 {
					next, err := toggleModules(current, enable, disable)
					if err != nil {
						return err
					}
					if current, err = svc.SetProjectModules(ctx, projectID, next); err != nil {
						return fmt.Errorf("save modules: %w", err)
					}
				}
				return writeOutput(cmd.OutOrStdout(), env.format, current, func(w io.Writer) error {
					return renderModules(w, current)
				})
			})
		},
	}
	modules.Flags().StringSliceVar(&enable, "enable", nil, "module keys to enable")
	modules.Flags().StringSliceVar(&disable, "disable", nil, "module keys to disable")

	cmd.AddCommand(list, create, duplicate, modules)
	return cmd
}

func addProjectDraftFlags(cmd *cobra.Command, draft *domain.ProjectDraft) {
	cmd.Flags().StringVarP(&draft.Name, "name", "n", "", "project name")
	cmd.Flags().StringVarP(&draft.Description, "description", "d", "", "project description")
	cmd.Flags().BoolVar(&draft.IsPrivate, "private", false, "hide the project from non-members")
	_ = cmd.MarkFlagRequired("name")
}

func writeProject(w io.Writer, format outputFormat, verb string, project domain.Project) error {
	summary := servercommon.ProjectSummary{
		ID:              project.ID,
		Slug:            project.Slug,
		Name:            project.Name,
		Description:     project.Description,
		IsPrivate:       project.IsPrivate,
		CurrentSprintID: project.CurrentSprintID,
	}
	return writeOutput(w, format, summary, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "%s project %d %s (%s)\n", verb, project.ID, project.Slug, project.Name)
		return err
	})
}

// toggleModules applies enable and disable keys to a copy of current.
func toggleModules(current []domain.ProjectModule, enable, disable []string) ([]domain.ProjectModule, error) {
	next := append([]domain.ProjectModule(nil), current...)
	apply := func(keys []string, enabled bool) error {
		for _, key := range keys {
			key = strings.ToLower(strings.TrimSpace(key))
			found := false
			for i := range next {
				if next[i].Key == key {
					next[i].Enabled = enabled
					found = true
				}
			}
			if !found {
				return fmt.Errorf("unknown module %q", key)
			}
		}
		return nil
	}
	if err := apply(enable, true); err != nil {
		return nil, err
	}
	if err := apply(disable, false); err != nil {
		return nil, err
	}
	return next, nil
}

func newBoardCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "board <project-id>",
		Short: "Print a project's kanban board",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			return opts.withService(cmd, "board", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				snap, err := servercommon.NewAppServiceAdapter(svc).GetBoard(ctx, projectID)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), env.format, snap, func(w io.Writer) error {
					return renderBoard(w, snap)
				})
			})
		},
	}
}

func newMoveCommand(opts *rootOptions) *cobra.Command {
	var index int
	cmd := &cobra.Command{
		Use:   "move <project-id> <card> <status-id>",
		Short: "Move a card such as US-3 or T-7 to a column",
		Long:  "Move a card to a column. Without --index the card goes to the end of the column.",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			statusID, err := parseID("status id", args[2])
			if err != nil {
				return err
			}
			req := servercommon.MoveCardRequest{ProjectID: projectID, Card: args[1], StatusID: statusID}
			if cmd.Flags().Changed("index") {
				req.Index = &index
			}
			return opts.withService(cmd, "move", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				result, err := servercommon.NewAppServiceAdapter(svc).MoveCard(ctx, req)
				if err != nil {
					return err
				}
				return writeOutput(cmd.OutOrStdout(), env.format, result, func(w io.Writer) error {
					if !result.Moved {
						_, err := fmt.Fprintf(w, "%s already at %d/%d\n", result.Card.Ref, result.Card.StatusID, result.Card.Index)
						return err
					}
					_, err := fmt.Fprintf(w, "moved %s to status %d at %d\n", result.Card.Ref, result.Card.StatusID, result.Card.Index)
					return err
				})
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "zero-based destination position")
	return cmd
}

func newStoryCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "story",
		Short: "Manage user stories",
	}
	var req servercommon.CreateStoryRequest
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a user story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			req.ProjectID = projectID
			return opts.withService(cmd, "story create", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				card, err := servercommon.NewAppServiceAdapter(svc).CreateStory(ctx, req)
				if err != nil {
					return err
				}
				return writeCreatedCard(cmd.OutOrStdout(), env.format, card)
			})
		},
	}
	create.Flags().StringVarP(&req.Title, "title", "t", "", "story title")
	create.Flags().StringVarP(&req.Description, "description", "d", "", "markdown description")
	create.Flags().Int64Var(&req.StatusID, "status", 0, "column id (default first column)")
	create.Flags().StringVar(&req.DueDate, "due", "", "due date as YYYY-MM-DD")
	_ = create.MarkFlagRequired("title")
	cmd.AddCommand(create)
	return cmd
}

func newTaskCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
	}
	var req servercommon.CreateTaskRequest
	create := &cobra.Command{
		Use:   "create <project-id>",
		Short: "Create a task, optionally under a user story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID, err := parseID("project id", args[0])
			if err != nil {
				return err
			}
			req.ProjectID = projectID
			return opts.withService(cmd, "task create", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				card, err := servercommon.NewAppServiceAdapter(svc).CreateTask(ctx, req)
				if err != nil {
					return err
				}
				return writeCreatedCard(cmd.OutOrStdout(), env.format, card)
			})
		},
	}
	create.Flags().StringVarP(&req.Name, "name", "n", "", "task name")
	create.Flags().StringVarP(&req.Description, "description", "d", "", "task description")
	create.Flags().Int64Var(&req.StatusID, "status", 0, "column id (default first column)")
	create.Flags().Int64Var(&req.UserStoryID, "story", 0, "parent user story id")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	return cmd
}

func writeCreatedCard(w io.Writer, format outputFormat, card servercommon.CardSummary) error {
	return writeOutput(w, format, card, func(w io.Writer) error {
		_, err := fmt.Fprintf(w, "created %s in status %d\n", cardLine(card), card.StatusID)
		return err
	})
}

func newProgressCommand(opts *rootOptions) *cobra.Command {
	var (
		watch    bool
		interval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "progress <sprint-id>",
		Short: "Print sprint completion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sprintID, err := parseID("sprint id", args[0])
			if err != nil {
				return err
			}
			return opts.withService(cmd, "progress", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				adapter := servercommon.NewAppServiceAdapter(svc)
				report := func() error {
					progress, err := adapter.SprintProgress(ctx, sprintID)
					if err != nil {
						return err
					}
					return writeOutput(cmd.OutOrStdout(), env.format, progress, func(w io.Writer) error {
						return renderProgress(w, progress)
					})
				}
				if err := report(); err != nil || !watch {
					return err
				}
				if interval <= 0 {
					interval = env.cfg.Board.PollInterval.Std()
				}
				ticker := time.NewTicker(interval)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
						if err := report(); err != nil {
							return err
						}
					}
				}
			})
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling until interrupted")
	cmd.Flags().DurationVar(&interval, "interval", 0, "poll interval (default board.poll_interval)")
	return cmd
}

func newSettingsCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change account settings",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print account settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "settings show", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				settings, err := svc.UserSettings(ctx)
				if err != nil {
					return fmt.Errorf("load settings: %w", err)
				}
				return writeSettings(cmd.OutOrStdout(), env.format, settings)
			})
		},
	}

	var (
		assigned, mentioned, status bool
		digest                      string
	)
	notify := &cobra.Command{
		Use:   "notify",
		Short: "Change email notification preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "settings notify", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				settings, err := svc.UserSettings(ctx)
				if err != nil {
					return fmt.Errorf("load settings: %w", err)
				}
				flags := cmd.Flags()
				if flags.Changed("assigned") {
					settings.Notifications.EmailOnAssigned = assigned
				}
				if flags.Changed("mentioned") {
					settings.Notifications.EmailOnMentioned = mentioned
				}
				if flags.Changed("status") {
					settings.Notifications.EmailOnStatusChange = status
				}
				if flags.Changed("digest") {
					settings.Notifications.Digest = domain.Digest(strings.ToLower(strings.TrimSpace(digest)))
				}
				saved, err := svc.UpdateUserSettings(ctx, settings)
				if err != nil {
					return fmt.Errorf("save settings: %w", err)
				}
				return writeSettings(cmd.OutOrStdout(), env.format, saved)
			})
		},
	}
	notify.Flags().BoolVar(&assigned, "assigned", true, "email when a card is assigned to you")
	notify.Flags().BoolVar(&mentioned, "mentioned", true, "email when you are mentioned")
	notify.Flags().BoolVar(&status, "status", false, "email on status changes of watched cards")
	notify.Flags().StringVar(&digest, "digest", string(domain.DigestInstant), "instant, daily, or none")

	cmd.AddCommand(show, notify)
	return cmd
}

func writeSettings(w io.Writer, format outputFormat, settings domain.UserSettings) error {
	view := newSettingsView(settings)
	return writeOutput(w, format, view, func(w io.Writer) error {
		return renderSettings(w, view)
	})
}

func newPasswordCommand(opts *rootOptions) *cobra.Command {
	var current, next, confirm string
	cmd := &cobra.Command{
		Use:   "password",
		Short: "Change the account password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "password", func(ctx context.Context, _ *runtimeEnv, svc *app.Service) error {
				reader := bufio.NewReader(cmd.InOrStdin())
				for _, field := range []struct {
					value  *string
					prompt string
				}{
					{&current, "Current password: "},
					{&next, "New password: "},
					{&confirm, "Confirm new password: "},
				} {
					if *field.value != "" {
						continue
					}
					line, err := promptLine(reader, cmd.ErrOrStderr(), field.prompt)
					if err != nil {
						return err
					}
					*field.value = line
				}
				if err := svc.ChangePassword(ctx, current, next, confirm); err != nil {
					return fmt.Errorf("change password: %w", err)
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "password changed")
				return err
			})
		},
	}
	cmd.Flags().StringVar(&current, "current", "", "current password (prompted when omitted)")
	cmd.Flags().StringVar(&next, "new", "", "new password (prompted when omitted)")
	cmd.Flags().StringVar(&confirm, "confirm", "", "new password again (prompted when omitted)")
	return cmd
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind     string
		seedUser     string
		seedPassword string
		seedName     string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sqlite-backed mock backend",
		Long:  "Serve the REST API the client talks to, plus health and metrics endpoints.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := opts.open("serve")
			if err != nil {
				return err
			}
			defer env.Close()
			ctx := cmd.Context()

			svc := backend.NewService(env.repo, uuid.NewString, time.Now, backend.ServiceConfig{})
			if strings.TrimSpace(seedUser) != "" {
				credential := seedPassword
				if env.cfg.Auth.PrehashPasswords {
					credential = api.PrehashPassword(seedPassword)
				}
				user, err := svc.EnsureUser(ctx, domain.User{Username: seedUser, FullName: seedName}, credential)
				if err != nil {
					return fmt.Errorf("seed user %q: %w", seedUser, err)
				}
				env.logger.Info("seed user ready", "username", user.Username, "id", user.ID)
			}
			if strings.TrimSpace(httpBind) == "" {
				httpBind = env.cfg.Server.HTTPBind
			}
			env.logger.Info("command flow start", "command", "serve", "http", httpBind)
			err = serveCommandRunner(ctx, serveradapter.Config{
				HTTPBind:        httpBind,
				V1Prefix:        env.cfg.API.V1Prefix,
				APIPrefix:       env.cfg.API.APIPrefix,
				MCPEndpoint:     env.cfg.Server.MCPEndpoint,
				MetricsEndpoint: env.cfg.Server.MetricsEndpoint,
				ServerName:      env.appName,
				ServerVersion:   version,
			}, serveradapter.Dependencies{
				Backend: svc,
				Logger:  env.logger,
			})
			if err != nil {
				env.logger.Error("command flow failed", "command", "serve", "err", err)
				return fmt.Errorf("run serve command: %w", err)
			}
			env.logger.Info("command flow complete", "command", "serve")
			return nil
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "", "listen address (default server.http_bind)")
	cmd.Flags().StringVar(&seedUser, "seed-user", "demo", "username created on startup when missing; empty disables seeding")
	cmd.Flags().StringVar(&seedPassword, "seed-password", "demo-password", "password for --seed-user")
	cmd.Flags().StringVar(&seedName, "seed-name", "Demo User", "full name for --seed-user")
	return cmd
}

func newMCPCommand(opts *rootOptions) *cobra.Command {
	var (
		httpBind string
		stdio    bool
	)
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Expose the signed-in board to agents over MCP",
		Long:  "Run an MCP server backed by the stored session, over streamable HTTP or stdio.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withService(cmd, "mcp", func(ctx context.Context, env *runtimeEnv, svc *app.Service) error {
				boards := servercommon.NewAppServiceAdapter(svc)
				if stdio {
					srv, err := mcpapi.NewServer(mcpapi.Config{ServerName: env.appName, ServerVersion: version}, boards)
					if err != nil {
						return fmt.Errorf("configure mcp server: %w", err)
					}
					err = mcpserver.NewStdioServer(srv).Listen(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
					if err != nil && !errors.Is(err, context.Canceled) {
						return fmt.Errorf("serve mcp stdio: %w", err)
					}
					return nil
				}
				if strings.TrimSpace(httpBind) == "" {
					return errors.New("--http is required without --stdio")
				}
				return serveCommandRunner(ctx, serveradapter.Config{
					HTTPBind:        httpBind,
					MCPEndpoint:     env.cfg.Server.MCPEndpoint,
					MetricsEndpoint: env.cfg.Server.MetricsEndpoint,
					ServerName:      env.appName,
					ServerVersion:   version,
				}, serveradapter.Dependencies{
					Board:  boards,
					Logger: env.logger,
				})
			})
		},
	}
	cmd.Flags().StringVar(&httpBind, "http", "127.0.0.1:8181", "listen address for streamable HTTP")
	cmd.Flags().BoolVar(&stdio, "stdio", false, "serve MCP over stdin/stdout")
	return cmd
}

func newPathsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Print resolved config and data paths",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := opts.resolvePaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "app: %s\n", opts.appName)
			_, _ = fmt.Fprintf(out, "dev_mode: %t\n", opts.devMode)
			_, _ = fmt.Fprintf(out, "config: %s\n", paths.ConfigPath)
			_, _ = fmt.Fprintf(out, "data_dir: %s\n", paths.DataDir)
			_, _ = fmt.Fprintf(out, "db: %s\n", paths.DBPath)
			_, _ = fmt.Fprintf(out, "log_dir: %s\n", paths.LogDir)
			return nil
		},
	}
}

// parseID parses a positive integer argument.
func parseID(name, raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// promptLine writes prompt and reads one trimmed line.
func promptLine(reader *bufio.Reader, output io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(output, prompt)
	line, err := reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.TrimSuffix(strings.ToLower(prompt), ": "), err)
	}
	return strings.TrimSpace(line), nil
}

// parseBoolEnv reads a boolean env var. The second result is false when unset or invalid.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
