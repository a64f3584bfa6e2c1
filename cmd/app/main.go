package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	sqliteadapter "github.com/samedev2/losungquebrasv32-sub001/internal/adapters/db/sqlite"
	httpadapter "github.com/samedev2/losungquebrasv32-sub001/internal/adapters/http"
	rpcadapter "github.com/samedev2/losungquebrasv32-sub001/internal/adapters/rpcjson"
	"github.com/samedev2/losungquebrasv32-sub001/internal/application"
	"github.com/samedev2/losungquebrasv32-sub001/internal/config"
	"github.com/samedev2/losungquebrasv32-sub001/internal/domain"
	"github.com/urfave/cli/v3"
)

// defaultConfigPath is shared by the bare invocation and the server
// subcommand so both resolve the same config file.
const defaultConfigPath = "config.yaml"

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	root := &cli.Command{
		Name:  "quebras",
		Usage: "Vehicle breakdown tracking server and CLI",
		Commands: []*cli.Command{
			serverCommand(),
			authCommand(),
			recordsCommand(),
			statusCommand(),
			timelineCommand(),
			analysisCommand(),
			reportCommand(),
			occurrencesCommand(),
			accessCommand(),
			auditCommand(),
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.Load(defaultConfigPath)
			if err != nil {
				return err
			}
			return runServer(ctx, cfg)
		},
	}

	if err := root.Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func serverCommand() *cli.Command {
	return &cli.Command{
		Name:  "server",
		Usage: "Run HTTP server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: defaultConfigPath, Usage: "YAML config file path"},
			&cli.StringFlag{Name: "addr", Usage: "HTTP listen address"},
			&cli.StringFlag{Name: "rpc-socket", Usage: "JSON-RPC unix socket path"},
			&cli.StringFlag{Name: "db-path", Usage: "SQLite database path"},
			&cli.StringFlag{Name: "bootstrap-admin-email", Usage: "initial admin email"},
			&cli.StringFlag{Name: "bootstrap-admin-password", Usage: "initial admin password when users are empty"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := config.Load(c.String("config"))
			if err != nil {
				return err
			}
			if v := c.String("addr"); v != "" {
				cfg.Addr = v
			}
			if v := c.String("rpc-socket"); v != "" {
				cfg.RPCSocket = v
			}
			if v := c.String("db-path"); v != "" {
				cfg.DBPath = v
			}
			if v := c.String("bootstrap-admin-email"); v != "" {
				cfg.BootstrapAdminEmail = v
			}
			if v := c.String("bootstrap-admin-password"); v != "" {
				cfg.BootstrapAdminPassword = v
			}
			return runServer(ctx, cfg)
		},
	}
}

func runServer(ctx context.Context, cfg config.Config) error {
	db, err := sqliteadapter.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	if err := sqliteadapter.RunMigrations(ctx, db); err != nil {
		return err
	}

	repo := sqliteadapter.NewTrackerRepository(db)
	service := application.NewTrackerService(repo, application.WithBottleneckThreshold(cfg.BottleneckThresholdPct))
	if err := service.BootstrapAdmin(ctx, cfg.BootstrapAdminEmail, cfg.BootstrapAdminPassword); err != nil {
		return err
	}

	sessionTTL := time.Duration(cfg.SessionTTLHours) * time.Hour
	router := httpadapter.NewRouter(service, sessionTTL)
	srv := &http.Server{Addr: cfg.Addr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	rpcSrv, err := rpcadapter.Start(cfg.RPCSocket, service)
	if err != nil {
		return err
	}

	defer func() {
		_ = rpcSrv.Close()
	}()
	log.Printf("json-rpc listening on unix://%s", cfg.RPCSocket)

	errCh := make(chan error, 1)
	go func() {
		log.Printf("server listening on %s", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("received signal %s, shutting down", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func authCommand() *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Authentication commands",
		Commands: []*cli.Command{
			{
				Name:  "login",
				Usage: "Login and store CLI token",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "transport", Value: defaultTransport},
					&cli.StringFlag{Name: "server", Value: defaultServerURL},
					&cli.StringFlag{Name: "socket", Value: defaultSocketPath},
					&cli.StringFlag{Name: "email", Required: true},
					&cli.StringFlag{Name: "password", Required: true},
					&cli.StringFlag{Name: "token-name", Value: "cli"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg := cliConfig{Transport: c.String("transport"), Server: c.String("server"), Socket: c.String("socket")}
					var out struct {
						Token string `json:"token"`
						Email string `json:"email"`
					}
					err := doLogin(ctx, cfg, c.String("email"), c.String("password"), c.String("token-name"), &out)
					if err != nil {
						return err
					}
					cfg.Token = out.Token
					if err := saveCLIConfig(cfg); err != nil {
						return err
					}
					fmt.Printf("logged in as %s\n", out.Email)
					return nil
				},
			},
			{
				Name:  "whoami",
				Usage: "Show current authenticated user",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out struct {
						ID    uint   `json:"id"`
						Email string `json:"email"`
					}
					if err := doWhoAmI(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{{"id", uintToString(out.ID)}, {"email", out.Email}})
					return nil
				},
			},
			{
				Name:  "logout",
				Usage: "Clear local CLI auth token",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					_ = doLogout(ctx, cfg)
					cfg.Token = ""
					if err := saveCLIConfig(cfg); err != nil {
						return err
					}
					fmt.Println("logged out")
					return nil
				},
			},
		},
	}
}

func recordsCommand() *cli.Command {
	return &cli.Command{
		Name:  "records",
		Usage: "Breakdown record commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List breakdown records",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "q", Usage: "plate or driver substring"},
					&cli.StringFlag{Name: "status"},
					&cli.IntFlag{Name: "limit", Value: 100},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out []domain.BreakdownRecord
					if err := doRecordsList(ctx, cfg, c.String("q"), c.String("status"), int(c.Int("limit")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRecords(out)
					return nil
				},
			},
			{
				Name:  "create",
				Usage: "Open a new breakdown record",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "plate", Required: true},
					&cli.StringFlag{Name: "driver", Required: true},
					&cli.StringFlag{Name: "description"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out domain.BreakdownRecord
					if err := doRecordsCreate(ctx, cfg, c.String("plate"), c.String("driver"), c.String("description"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printKV([][2]string{
						{"id", uintToString(out.ID)},
						{"plate", out.VehiclePlate},
						{"driver", out.DriverName},
						{"status", string(out.Status)},
					})
					return nil
				},
			},
			{
				Name:  "get",
				Usage: "Show one breakdown record",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out domain.BreakdownRecord
					if err := doRecordsGet(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printRecords([]domain.BreakdownRecord{out})
					return nil
				},
			},
			{
				Name:  "delete",
				Usage: "Delete records and their histories",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ids", Required: true, Usage: "csv record ids"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					ids, err := parseIDList(c.String("ids"))
					if err != nil {
						return err
					}
					var out map[string]any
					if err := doRecordsDelete(ctx, cfg, ids, &out); err != nil {
						return err
					}
					fmt.Printf("deleted %d record(s)\n", len(ids))
					return nil
				},
			},
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Status commands",
		Commands: []*cli.Command{
			{
				Name:  "set",
				Usage: "Transition a record to a new status",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "to", Required: true, Usage: "target status key"},
					&cli.StringFlag{Name: "operator", Required: true},
					&cli.StringFlag{Name: "notes"},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out domain.StatusTransition
					if err := doStatusSet(ctx, cfg, uint(c.Uint("id")), c.String("to"), c.String("operator"), c.String("notes"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printTransition(out)
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List known statuses and allowed transitions",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out []statusInfo
					if err := doStatusesList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printStatuses(out)
					return nil
				},
			},
		},
	}
}

func timelineCommand() *cli.Command {
	return &cli.Command{
		Name:  "timeline",
		Usage: "Show a record's status timeline",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "id", Required: true},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			var out []domain.TimelineEntry
			if err := doTimeline(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printTimeline(out)
			return nil
		},
	}
}

func analysisCommand() *cli.Command {
	return &cli.Command{
		Name:  "analysis",
		Usage: "Analyze a record's transition history",
		Flags: []cli.Flag{
			&cli.UintFlag{Name: "id", Required: true},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			var out domain.ProcessTimelineAnalysis
			if err := doAnalysis(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			if len(out.Timeline) == 0 {
				fmt.Println("no transition data")
				return nil
			}
			printAnalysis(out)
			return nil
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Generate managerial report for a period",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "start", Required: true, Usage: "RFC3339 or YYYY-MM-DD"},
			&cli.StringFlag{Name: "end", Required: true, Usage: "RFC3339 or YYYY-MM-DD"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadCLIConfig()
			if err != nil {
				return err
			}
			var out domain.ManagerialReport
			if err := doReport(ctx, cfg, c.String("start"), c.String("end"), &out); err != nil {
				return err
			}
			if c.Bool("json") {
				return printJSON(out)
			}
			printReport(out)
			return nil
		},
	}
}

func occurrencesCommand() *cli.Command {
	return &cli.Command{
		Name:  "occurrences",
		Usage: "Occurrence annotation commands",
		Commands: []*cli.Command{
			{
				Name:  "add",
				Usage: "Attach an annotation to a record",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.StringFlag{Name: "operator", Required: true},
					&cli.StringFlag{Name: "description", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out domain.Occurrence
					if err := doOccurrenceAdd(ctx, cfg, uint(c.Uint("id")), c.String("operator"), c.String("description"), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printOccurrences([]domain.Occurrence{out})
					return nil
				},
			},
			{
				Name:  "list",
				Usage: "List a record's annotations",
				Flags: []cli.Flag{
					&cli.UintFlag{Name: "id", Required: true},
					&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out []domain.Occurrence
					if err := doOccurrencesList(ctx, cfg, uint(c.Uint("id")), &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printOccurrences(out)
					return nil
				},
			},
		},
	}
}

func accessCommand() *cli.Command {
	return &cli.Command{
		Name:  "access",
		Usage: "Access and users commands",
		Commands: []*cli.Command{
			{
				Name:  "users",
				Usage: "Manage users",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List users",
						Flags: []cli.Flag{&cli.StringFlag{Name: "q"}, &cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadCLIConfig()
							if err != nil {
								return err
							}
							var out []domain.User
							if err := doUsersList(ctx, cfg, c.String("q"), &out); err != nil {
								return err
							}
							if c.Bool("json") {
								return printJSON(out)
							}
							printUsers(out)
							return nil
						},
					},
					{
						Name:  "create",
						Usage: "Create user",
						Flags: []cli.Flag{
							&cli.StringFlag{Name: "email", Required: true},
							&cli.StringFlag{Name: "password", Required: true},
							&cli.UintFlag{Name: "role-id"},
							&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadCLIConfig()
							if err != nil {
								return err
							}
							var out domain.User
							if err := doUsersCreate(ctx, cfg, c.String("email"), c.String("password"), uint(c.Uint("role-id")), &out); err != nil {
								return err
							}
							if c.Bool("json") {
								return printJSON(out)
							}
							printUsers([]domain.User{out})
							return nil
						},
					},
				},
			},
			{
				Name:  "roles",
				Usage: "Manage roles",
				Commands: []*cli.Command{
					{
						Name:  "list",
						Usage: "List roles",
						Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadCLIConfig()
							if err != nil {
								return err
							}
							var out []domain.Role
							if err := doRolesList(ctx, cfg, &out); err != nil {
								return err
							}
							if c.Bool("json") {
								return printJSON(out)
							}
							printRoles(out)
							return nil
						},
					},
					{
						Name:  "assign",
						Usage: "Assign role to user",
						Flags: []cli.Flag{
							&cli.UintFlag{Name: "user-id", Required: true},
							&cli.UintFlag{Name: "role-id", Required: true},
							&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
						},
						Action: func(ctx context.Context, c *cli.Command) error {
							cfg, err := loadCLIConfig()
							if err != nil {
								return err
							}
							var out map[string]any
							if err := doAssignRole(ctx, cfg, uint(c.Uint("user-id")), uint(c.Uint("role-id")), &out); err != nil {
								return err
							}
							if c.Bool("json") {
								return printJSON(out)
							}
							fmt.Printf("assigned role %d to user %d\n", uint(c.Uint("role-id")), uint(c.Uint("user-id")))
							return nil
						},
					},
				},
			},
		},
	}
}

func auditCommand() *cli.Command {
	return &cli.Command{
		Name:  "audit",
		Usage: "Audit log commands",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List audit logs",
				Flags: []cli.Flag{&cli.BoolFlag{Name: "json", Usage: "output raw JSON"}},
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, err := loadCLIConfig()
					if err != nil {
						return err
					}
					var out []domain.AuditRecord
					if err := doAuditList(ctx, cfg, &out); err != nil {
						return err
					}
					if c.Bool("json") {
						return printJSON(out)
					}
					printAuditRecords(out)
					return nil
				},
			},
		},
	}
}

func parseIDList(raw string) ([]uint, error) {
	parts := strings.Split(raw, ",")
	ids := make([]uint, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		parsed, err := strconv.ParseUint(part, 10, 64)
		if err != nil || parsed == 0 {
			return nil, fmt.Errorf("invalid record id %q", part)
		}
		ids = append(ids, uint(parsed))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("at least one record id is required")
	}
	return ids, nil
}

func jsonMarshal(v any) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}
