package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/moniquedpoliveira/licito/internal/app"
	"github.com/moniquedpoliveira/licito/internal/config"
	"github.com/moniquedpoliveira/licito/internal/db"
	"github.com/moniquedpoliveira/licito/internal/dispatch"
	"github.com/moniquedpoliveira/licito/internal/domain"
	"github.com/moniquedpoliveira/licito/internal/engine"
	"github.com/moniquedpoliveira/licito/internal/migrate"
	"github.com/moniquedpoliveira/licito/internal/repo"
	"github.com/moniquedpoliveira/licito/internal/server"
	"github.com/moniquedpoliveira/licito/internal/telemetry"
)

var rootCmd = &cobra.Command{
	Use:   "licito",
	Short: "Lícito contract oversight CLI",
	Long: `Lícito tracks public procurement contracts through their oversight checklists.
- Checklists: every contract gets one item per catalog entry of each type (ADMINISTRATIVA, TECNICA).
- Items: move between PENDENTE, EM_ANDAMENTO, CONCLUIDO and NAO_CONFORME; every change is kept in the item history.
- Esclarecimentos: questions on an item, routed to the fiscal role responsible for its checklist type.
- Notifications: in-app inbox per user; 'licito notify' reaches contract parties by email and WhatsApp.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging(viper.GetString("log-level"))
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
		color.Red("error: %v", err)
		stop()
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LICITO")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "", "acting user id")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(checklistCmd())
	rootCmd.AddCommand(esclarecimentoCmd())
	rootCmd.AddCommand(notificationCmd())
	rootCmd.AddCommand(notifyCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(contratoCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
}

func setupLogging(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid --log-level %q", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
	return nil
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create licito.yml and the database, then seed",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				color.Green("wrote %s", path)
			}
			return runSeed(cmd.Context())
		},
	}
}

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Load catalog, users and contracts from licito.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
}

func runSeed(ctx context.Context) error {
	return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
		rep, err := app.Seed(ctx, e.DB, e.Config, e.Catalog)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(rep)
		}
		fmt.Printf("templates: %d new, users: %d, contratos: %d\n", rep.Templates, rep.Users, rep.Contratos)
		return nil
	})
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{Use: "config", Short: "Inspect licito.yml"}
	cfg.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show loaded config",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := config.Load(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			return printJSON(c)
		},
	})
	cfg.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate licito.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			color.Green("config OK")
			return nil
		},
	})
	return cfg
}

func checklistCmd() *cobra.Command {
	cl := &cobra.Command{Use: "checklist", Short: "Work contract checklists"}
	cl.AddCommand(checklistListCmd())
	cl.AddCommand(checklistUpdateCmd())
	cl.AddCommand(checklistHistoryCmd())
	cl.AddCommand(checklistProgressCmd())
	return cl
}

func resolveContrato(ctx context.Context, e engine.Engine, ref string) (domain.Contrato, error) {
	c, err := e.Repo.GetContrato(ctx, ref)
	if errors.Is(err, repo.ErrNotFound) {
		return e.Repo.GetContratoByNumero(ctx, ref)
	}
	return c, err
}

func checklistListCmd() *cobra.Command {
	var contrato, typ string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Provision and list a contract checklist",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := resolveContrato(ctx, e, contrato)
				if err != nil {
					return err
				}
				items, err := e.EnsureItems(ctx, c.ID, domain.ChecklistType(strings.ToUpper(typ)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Item", "Status", "Observação", "Esclarecimentos"})
				for _, it := range items {
					text := ""
					if it.Template != nil {
						text = it.Template.Text
					}
					obs := ""
					if it.CurrentObservation != nil {
						obs = *it.CurrentObservation
					}
					tw.AppendRow(table.Row{it.ID, text, statusLabel(it.Status), obs, len(it.Esclarecimentos)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contrato, "contrato", "", "contract id or number")
	cmd.Flags().StringVar(&typ, "type", string(domain.Administrativa), "checklist type")
	_ = cmd.MarkFlagRequired("contrato")
	return cmd
}

func checklistUpdateCmd() *cobra.Command {
	var item, status, observation string
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Change an item status",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				it, err := e.Transition(ctx, engine.TransitionRequest{
					ItemID:      item,
					Status:      domain.ItemStatus(strings.ToUpper(status)),
					Observation: observation,
					ActorID:     actor,
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(it)
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "checklist item id")
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&observation, "observation", "", "observation")
	_ = cmd.MarkFlagRequired("item")
	_ = cmd.MarkFlagRequired("status")
	return cmd
}

func checklistHistoryCmd() *cobra.Command {
	var item string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show an item's audit trail",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.ItemHistory(ctx, item)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Quando", "Status", "Observação", "Usuário"})
				for _, h := range entries {
					tw.AppendRow(table.Row{h.CreatedAt, statusLabel(h.Status), h.Observation, h.UserID})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&item, "item", "", "checklist item id")
	_ = cmd.MarkFlagRequired("item")
	return cmd
}

func checklistProgressCmd() *cobra.Command {
	var contrato, typ string
	cmd := &cobra.Command{
		Use:   "progress",
		Short: "Count items per status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := resolveContrato(ctx, e, contrato)
				if err != nil {
					return err
				}
				p, err := e.Progress(ctx, c.ID, domain.ChecklistType(strings.ToUpper(typ)))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("Contrato %s (%s), %s: %d itens\n", c.NumeroContrato, c.Status(time.Now()), p.Type, p.Total)
				for _, st := range domain.Statuses {
					fmt.Printf("  %s: %d\n", statusLabel(st), p.ByStatus[string(st)])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&contrato, "contrato", "", "contract id or number")
	cmd.Flags().StringVar(&typ, "type", string(domain.Administrativa), "checklist type")
	_ = cmd.MarkFlagRequired("contrato")
	return cmd
}

func esclarecimentoCmd() *cobra.Command {
	ec := &cobra.Command{Use: "esclarecimento", Short: "Ask and answer questions on checklist items"}

	var item, question string
	ask := &cobra.Command{
		Use:   "ask",
		Short: "Ask a question on an item",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				esc, err := e.Ask(ctx, item, question, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(esc)
			})
		},
	}
	ask.Flags().StringVar(&item, "item", "", "checklist item id")
	ask.Flags().StringVar(&question, "question", "", "question text")
	_ = ask.MarkFlagRequired("item")
	_ = ask.MarkFlagRequired("question")

	var id, answer string
	ans := &cobra.Command{
		Use:   "answer",
		Short: "Answer an esclarecimento",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				esc, err := e.Answer(ctx, id, answer, actor)
				if err != nil {
					return err
				}
				return printJSONOrTable(esc)
			})
		},
	}
	ans.Flags().StringVar(&id, "id", "", "esclarecimento id")
	ans.Flags().StringVar(&answer, "answer", "", "answer text")
	_ = ans.MarkFlagRequired("id")
	_ = ans.MarkFlagRequired("answer")

	var listItem string
	list := &cobra.Command{
		Use:   "list",
		Short: "List an item's esclarecimentos",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				escs, err := e.ListEsclarecimentos(ctx, listItem)
				if err != nil {
					return err
				}
				return printJSONOrTable(escs)
			})
		},
	}
	list.Flags().StringVar(&listItem, "item", "", "checklist item id")
	_ = list.MarkFlagRequired("item")

	ec.AddCommand(ask, ans, list)
	return ec
}

func notificationCmd() *cobra.Command {
	nc := &cobra.Command{Use: "notification", Short: "In-app notifications"}

	var unread bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List the acting user's notifications",
		RunE: func(cmd *cobra.Command, args []string) error {
			actor, err := requireActor()
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var ns []domain.Notification
				if unread {
					ns, err = e.Inbox.ListUnread(ctx, actor)
				} else {
					ns, err = e.Inbox.ListAll(ctx, actor)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ns)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Tipo", "Pergunta", "Lida", "Criada"})
				for _, n := range ns {
					question := ""
					if n.Esclarecimento != nil {
						question = n.Esclarecimento.Question
					}
					read := color.YellowString("não")
					if n.Read {
						read = "sim"
					}
					tw.AppendRow(table.Row{n.ID, n.Type, question, read, n.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().BoolVar(&unread, "unread", false, "only unread notifications")

	var id string
	read := &cobra.Command{
		Use:   "read",
		Short: "Mark a notification read",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.Inbox.MarkRead(ctx, id); err != nil {
					return err
				}
				fmt.Println("ok")
				return nil
			})
		},
	}
	read.Flags().StringVar(&id, "id", "", "notification id")
	_ = read.MarkFlagRequired("id")

	relay := &cobra.Command{
		Use:   "relay",
		Short: "Retry pending notification fan-outs once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.Inbox.Drain(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("delivered %d pending fan-outs\n", n)
				return nil
			})
		},
	}

	nc.AddCommand(list, read, relay)
	return nc
}

func notifyCmd() *cobra.Command {
	var numero, updateType, description, action string
	var channels []string
	cmd := &cobra.Command{
		Use:   "notify",
		Short: "Send a contract update to its responsible parties",
		RunE: func(cmd *cobra.Command, args []string) error {
			chans := make([]dispatch.Channel, 0, len(channels))
			for _, raw := range channels {
				ch, err := dispatch.ParseChannel(strings.ToLower(raw))
				if err != nil {
					return err
				}
				chans = append(chans, ch)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				results, err := e.NotifyContract(ctx, numero, dispatch.Update{
					Type:           updateType,
					Description:    description,
					ActionRequired: action,
				}, chans...)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(results)
				}
				for _, r := range results {
					if r.Success {
						color.Green("[%s] %s", r.Channel, r.Message)
					} else {
						color.Red("[%s] %s", r.Channel, r.Message)
					}
					for _, a := range r.Failed() {
						fmt.Printf("  falhou %s: %s\n", a.Destination, a.Message)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&numero, "numero", "", "contract number")
	cmd.Flags().StringVar(&updateType, "type", "", "update type")
	cmd.Flags().StringVar(&description, "description", "", "update description")
	cmd.Flags().StringVar(&action, "action", "", "action required")
	cmd.Flags().StringSliceVar(&channels, "channel", []string{"email", "whatsapp"}, "channels to use")
	_ = cmd.MarkFlagRequired("numero")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func userCmd() *cobra.Command {
	uc := &cobra.Command{Use: "user", Short: "Manage users"}
	uc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List users",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				users, err := e.Repo.ListUsers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(users)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Nome", "Email", "Papel", "Ativo"})
				for _, u := range users {
					tw.AppendRow(table.Row{u.ID, u.Name, u.Email, u.Role, u.IsActive})
				}
				tw.Render()
				return nil
			})
		},
	})
	for _, active := range []bool{true, false} {
		use, short := "activate", "Activate a user"
		if !active {
			use, short = "deactivate", "Deactivate a user"
		}
		var id string
		sub := &cobra.Command{
			Use:   use,
			Short: short,
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					return e.Repo.SetUserActive(ctx, id, active)
				})
			},
		}
		sub.Flags().StringVar(&id, "id", "", "user id")
		_ = sub.MarkFlagRequired("id")
		uc.AddCommand(sub)
	}
	return uc
}

func contratoCmd() *cobra.Command {
	cc := &cobra.Command{Use: "contrato", Short: "Inspect contracts"}
	cc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List contracts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				list, err := e.Repo.ListContratos(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(list)
				}
				now := time.Now()
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Número", "Objeto", "Valor", "Status"})
				for _, c := range list {
					st := c.Status(now)
					if st == "Vigente" {
						st = color.GreenString(st)
					} else {
						st = color.RedString(st)
					}
					tw.AppendRow(table.Row{c.ID, c.NumeroContrato, c.Objeto, dispatch.FormatBRL(c.ValorTotal), st})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cc
}

func apiKeyCmd() *cobra.Command {
	ak := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var user, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key; the secret is printed once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetUser(ctx, user); err != nil {
					return fmt.Errorf("user %s: %w", user, err)
				}
				raw, err := newAPIKeySecret()
				if err != nil {
					return err
				}
				key := repo.APIKey{
					ID:        uuid.NewString(),
					UserID:    user,
					Name:      name,
					KeyHash:   repo.HashAPIKey(raw),
					CreatedAt: domain.FormatTime(time.Now()),
				}
				if err := e.Repo.InsertAPIKey(ctx, key); err != nil {
					return err
				}
				return printJSON(map[string]string{"id": key.ID, "user_id": user, "key": raw})
			})
		},
	}
	create.Flags().StringVar(&user, "user", "", "user id")
	create.Flags().StringVar(&name, "name", "", "key label")
	_ = create.MarkFlagRequired("user")

	var listUser string
	list := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, listUser)
				if err != nil {
					return err
				}
				return printJSONOrTable(keys)
			})
		},
	}
	list.Flags().StringVar(&listUser, "user", "", "filter by user id")

	var id string
	revoke := &cobra.Command{
		Use:   "revoke",
		Short: "Delete an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, id)
			})
		},
	}
	revoke.Flags().StringVar(&id, "id", "", "key id")
	_ = revoke.MarkFlagRequired("id")

	ak.AddCommand(create, list, revoke)
	return ak
}

func logCmd() *cobra.Command {
	lc := &cobra.Command{Use: "log", Short: "Event log"}
	var contrato string
	var after int64
	var n int
	tail := &cobra.Command{
		Use:   "tail",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				contratoID := ""
				if contrato != "" {
					c, err := resolveContrato(ctx, e, contrato)
					if err != nil {
						return err
					}
					contratoID = c.ID
				}
				evts, err := e.Events.List(ctx, contratoID, after, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(evts)
			})
		},
	}
	tail.Flags().StringVar(&contrato, "contrato", "", "contract id or number")
	tail.Flags().Int64Var(&after, "after", 0, "only events after this id")
	tail.Flags().IntVar(&n, "n", 50, "number of events")
	lc.AddCommand(tail)
	return lc
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var devLogin bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			mp := sdkmetric.NewMeterProvider()
			otel.SetMeterProvider(mp)
			defer mp.Shutdown(context.Background())

			return withEngine(ctx, func(ctx context.Context, e engine.Engine) error {
				if _, err := app.Seed(ctx, e.DB, e.Config, e.Catalog); err != nil {
					return err
				}
				authCfg := server.AuthConfig{
					JWTSecret:             viper.GetString("jwt_secret"),
					AllowLegacyUserHeader: viper.GetBool("allow_legacy_user_header"),
					EnableDevLogin:        devLogin,
				}
				if authCfg.JWTSecret == "" && !authCfg.AllowLegacyUserHeader {
					return fmt.Errorf("LICITO_JWT_SECRET is required for bearer auth")
				}
				handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
				if err != nil {
					return err
				}
				go e.Inbox.Run(ctx, e.Config.Outbox.Interval)
				server.StartWebhooks(ctx, e)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				slog.InfoContext(ctx, "serving Licito API", "addr", addr, "base_path", basePath, "docs", "/docs")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v1", "API base path")
	cmd.Flags().BoolVar(&devLogin, "dev-login", false, "expose POST /auth/dev/login")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		return err
	}
	metrics, err := telemetry.New(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg).WithMetrics(metrics)
	e.Dispatcher = app.NewDispatcher(cfg, app.Secrets{
		EmailAPIKey:    viper.GetString("email_api_key"),
		WhatsAppAPIKey: viper.GetString("whatsapp_api_key"),
	}, metrics)
	return fn(ctx, e)
}

func requireActor() (string, error) {
	actor := strings.TrimSpace(viper.GetString("actor-id"))
	if actor == "" {
		return "", fmt.Errorf("--actor-id (or LICITO_ACTOR_ID) required")
	}
	return actor, nil
}

func newAPIKeySecret() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "lk_" + hex.EncodeToString(b), nil
}

func statusLabel(s domain.ItemStatus) string {
	switch s {
	case domain.StatusConcluido:
		return color.GreenString(string(s))
	case domain.StatusEmAndamento:
		return color.CyanString(string(s))
	case domain.StatusNaoConforme:
		return color.RedString(string(s))
	default:
		return color.YellowString(string(s))
	}
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
