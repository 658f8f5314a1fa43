package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"operador/internal/agents"
	"operador/internal/app"
	"operador/internal/auth"
	"operador/internal/config"
	"operador/internal/domain"
	"operador/internal/engine"
	"operador/internal/events"
)

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create operador.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Println("wrote", path)
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				fmt.Printf("workspace ready (auth mode %s)\n", rt.Config.Auth.Mode)
				return nil
			})
		},
	}
}

func configCmd() *cobra.Command {
	c := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Auth.JWTSecret = redact(cfg.Auth.JWTSecret)
			cfg.Agents.APIKey = redact(cfg.Agents.APIKey)
			cfg.Redis.Password = redact(cfg.Redis.Password)
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate operador.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config ok")
			return nil
		},
	})
	return c
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func userCmd() *cobra.Command {
	c := &cobra.Command{Use: "user", Short: "Manage users"}
	var email, password, name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user with its four missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if email == "" {
				return fmt.Errorf("--email required")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				now := rt.Engine.Clock.Now()
				u := domain.User{Email: email, Name: name, Role: "user", CreatedAt: now.UTC().Format(time.RFC3339)}
				if password != "" {
					hash, err := auth.HashPassword(password)
					if err != nil {
						return err
					}
					u.PasswordHash = hash
				}
				evt := events.New(now, events.UserSignedUp, 0, "user", nil, events.EventPayload{"email": email, "source": "cli"})
				u, err := rt.Repo.CreateUser(ctx, u, evt)
				if err != nil {
					return err
				}
				missions, err := rt.Engine.InitializeUser(ctx, u.ID)
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"user": u, "missions": len(missions)})
			})
		},
	}
	create.Flags().StringVar(&email, "email", "", "email")
	create.Flags().StringVar(&password, "password", "", "password for token mode logins")
	create.Flags().StringVar(&name, "name", "", "display name")
	c.AddCommand(create)
	return c
}

func missionsCmd() *cobra.Command {
	c := &cobra.Command{Use: "missions", Short: "Inspect and advance missions"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				missions, err := rt.Engine.ListMissions(ctx, currentUser(rt))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(missions)
				}
				tw := newTable(table.Row{"#", "Title", "Status", "Streak", "Started", "Completed"})
				for _, m := range missions {
					streak, err := rt.Engine.CurrentStreak(ctx, m.UserID, m.ID)
					if err != nil {
						return err
					}
					tw.AppendRow(table.Row{m.Number, m.Title, m.Status, fmt.Sprintf("%d/%d", streak, m.RequiredStreak), deref(m.StartedAt), deref(m.CompletedAt)})
				}
				tw.Render()
				return nil
			})
		},
	})

	var number int
	show := &cobra.Command{
		Use:   "show",
		Short: "Show a mission (active by default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, number)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(m)
				}
				fmt.Printf("Missão %d: %s [%s]\n", m.Number, m.Title, m.Status)
				fmt.Printf("  Objetivo:        %s\n", m.Objective)
				fmt.Printf("  Ação mínima:     %s\n", m.MinimalAction)
				fmt.Printf("  Repetição:       %s\n", m.RepetitionRule)
				fmt.Printf("  Conclusão:       %s\n", m.CompletionCriteria)
				fmt.Printf("  Penalidade:      %s\n", m.SilentPenalty)
				return nil
			})
		},
	}
	show.Flags().IntVar(&number, "mission", 0, "mission number")
	c.AddCommand(show)

	var advNumber int
	advance := &cobra.Command{
		Use:   "advance",
		Short: "Complete the mission if its streak is met",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, advNumber)
				if err != nil {
					return err
				}
				res, err := rt.Engine.EvaluateAndAdvance(ctx, m.UserID, m.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printAdvance(res)
				return nil
			})
		},
	}
	advance.Flags().IntVar(&advNumber, "mission", 0, "mission number")
	c.AddCommand(advance)

	var confNumber int
	confirm := &cobra.Command{
		Use:   "confirm",
		Short: "Complete a mission that has no streak rule",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, confNumber)
				if err != nil {
					return err
				}
				res, err := rt.Engine.ConfirmMission(ctx, m.UserID, m.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				printAdvance(res)
				return nil
			})
		},
	}
	confirm.Flags().IntVar(&confNumber, "mission", 0, "mission number")
	c.AddCommand(confirm)
	return c
}

func printAdvance(res engine.Advance) {
	if !res.Advanced {
		fmt.Printf("Missão %d: %d/%d dias consecutivos.\n", res.Mission.Number, res.Streak, res.Required)
		return
	}
	fmt.Printf("Missão %d concluída.\n", res.Mission.Number)
	if res.Next != nil {
		fmt.Printf("Missão %d liberada: %s\n", res.Next.Number, res.Next.Title)
	}
}

func progressCmd() *cobra.Command {
	c := &cobra.Command{Use: "progress", Short: "Record and inspect daily check-ins"}

	var number int
	var date, notes string
	var done, notDone bool
	record := &cobra.Command{
		Use:   "record",
		Short: "Record today's (or --date) check-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			if done == notDone {
				return fmt.Errorf("pass exactly one of --done or --not-done")
			}
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, number)
				if err != nil {
					return err
				}
				p, err := rt.Engine.RecordProgress(ctx, engine.ProgressInput{
					UserID:    m.UserID,
					MissionID: m.ID,
					Date:      date,
					Completed: done,
					Notes:     notes,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				fmt.Printf("%s registrado para missão %d. Sequência: %d/%d\n", p.Date, m.Number, p.ConsecutiveDays, m.RequiredStreak)
				return nil
			})
		},
	}
	record.Flags().IntVar(&number, "mission", 0, "mission number (active by default)")
	record.Flags().StringVar(&date, "date", "", "day as YYYY-MM-DD (default today)")
	record.Flags().StringVar(&notes, "notes", "", "free-text notes")
	record.Flags().BoolVar(&done, "done", false, "mark the day as done")
	record.Flags().BoolVar(&notDone, "not-done", false, "mark the day as not done")
	c.AddCommand(record)

	var todayNumber int
	today := &cobra.Command{
		Use:   "today",
		Short: "Show today's check-in",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, todayNumber)
				if err != nil {
					return err
				}
				p, err := rt.Engine.TodayProgress(ctx, m.UserID, m.ID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(p)
				}
				if p == nil {
					fmt.Println("Nada registrado hoje.")
					return nil
				}
				fmt.Printf("%s: %s (sequência %d)\n", p.Date, doneLabel(p.Completed), p.ConsecutiveDays)
				return nil
			})
		},
	}
	today.Flags().IntVar(&todayNumber, "mission", 0, "mission number (active by default)")
	c.AddCommand(today)

	var histNumber, n int
	history := &cobra.Command{
		Use:   "history",
		Short: "List check-ins, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				m, err := missionArg(ctx, rt, histNumber)
				if err != nil {
					return err
				}
				items, err := rt.Engine.ProgressHistory(ctx, m.UserID, m.ID, n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable(table.Row{"Date", "Result", "Streak", "Notes"})
				for _, p := range items {
					tw.AppendRow(table.Row{p.Date, doneLabel(p.Completed), p.ConsecutiveDays, p.Notes})
				}
				tw.Render()
				return nil
			})
		},
	}
	history.Flags().IntVar(&histNumber, "mission", 0, "mission number (active by default)")
	history.Flags().IntVar(&n, "n", 14, "number of days")
	c.AddCommand(history)
	return c
}

func doneLabel(completed bool) string {
	if completed {
		return "FEITO"
	}
	return "NÃO FEITO"
}

func autonomyCmd() *cobra.Command {
	var snapshot, history bool
	cmd := &cobra.Command{
		Use:   "autonomy",
		Short: "Show the autonomy score",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				userID := currentUser(rt)
				a, err := rt.Engine.Autonomy(ctx, userID)
				if err != nil {
					return err
				}
				out := map[string]any{"autonomy": a}
				if snapshot {
					snap, err := rt.Engine.SnapshotAutonomy(ctx, userID)
					if err != nil {
						return err
					}
					out["snapshot"] = snap
				}
				var snaps []domain.AutonomySnapshot
				if history {
					snaps, err = rt.Engine.AutonomyHistory(ctx, userID, 0)
					if err != nil {
						return err
					}
					out["history"] = snaps
				}
				if viper.GetBool("json") {
					return printJSON(out)
				}
				ready := "ainda não"
				if a.Ready {
					ready = "sim"
				}
				fmt.Printf("Autonomia: %d%% (%d/%d missões). Pronto para sair: %s\n", a.Percent, a.Completed, a.Total, ready)
				if len(snaps) > 0 {
					tw := newTable(table.Row{"Week", "Percent", "Ready"})
					for _, s := range snaps {
						tw.AppendRow(table.Row{s.Week, s.Percent, s.Ready})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&snapshot, "snapshot", false, "store this week's score")
	cmd.Flags().BoolVar(&history, "history", false, "list weekly snapshots")
	return cmd
}

func agentsCmd() *cobra.Command {
	c := &cobra.Command{Use: "agents", Short: "Talk to the guidance agents"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List agents",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog := agents.Catalog()
			if viper.GetBool("json") {
				return printJSON(catalog)
			}
			tw := newTable(table.Row{"Type", "Title", "Description"})
			for _, a := range catalog {
				tw.AppendRow(table.Row{a.Type, a.Title, a.Description})
			}
			tw.Render()
			return nil
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "chat <type> <message...>",
		Short: "Send one message to an agent",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				it, err := rt.Agents.Chat(ctx, currentUser(rt), args[0], strings.Join(args[1:], " "))
				if errors.Is(err, agents.ErrUnavailable) && !rt.Agents.Available() {
					return fmt.Errorf("%w: set agents.api_key or OPERADOR_AGENTS_API_KEY", err)
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(it)
				}
				fmt.Println(it.AIResponse)
				return nil
			})
		},
	})
	var agentType string
	var n int
	history := &cobra.Command{
		Use:   "history",
		Short: "Past agent exchanges",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				items, err := rt.Agents.History(ctx, currentUser(rt), agentType, n)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	history.Flags().StringVar(&agentType, "type", "", "agent type filter")
	history.Flags().IntVar(&n, "n", 20, "number of exchanges")
	c.AddCommand(history)
	return c
}

func guidesCmd() *cobra.Command {
	c := &cobra.Command{Use: "guides", Short: "Browse the reading library"}
	var layer string
	list := &cobra.Command{
		Use:   "list",
		Short: "List guides",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				guides, err := rt.Repo.ListGuides(ctx, layer)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(guides)
				}
				tw := newTable(table.Row{"#", "Layer", "Title", "Minutes"})
				for _, g := range guides {
					tw.AppendRow(table.Row{g.Order, g.Layer, g.Title, g.ReadingTime})
				}
				tw.Render()
				return nil
			})
		},
	}
	list.Flags().StringVar(&layer, "layer", "", "illusion, clarity, pattern, escape or autonomy")
	c.AddCommand(list)
	return c
}

func logCmd() *cobra.Command {
	c := &cobra.Command{Use: "log", Short: "Event log"}
	c.AddCommand(logTailCmd())
	return c
}

func logTailCmd() *cobra.Command {
	var n int
	var follow bool
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				userID := currentUser(rt)
				evts, err := rt.Engine.Events(ctx, userID, n)
				if err != nil {
					return err
				}
				for i := len(evts) - 1; i >= 0; i-- {
					printEvent(evts[i])
				}
				if !follow {
					return nil
				}
				var cursor int64
				if len(evts) > 0 {
					cursor = evts[0].ID
				}
				ticker := time.NewTicker(time.Second)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return nil
					case <-ticker.C:
					}
					next, err := rt.Repo.EventsAfter(ctx, 100, cursor, userID)
					if err != nil {
						return err
					}
					for _, e := range next {
						printEvent(e)
						cursor = e.ID
					}
				}
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "keep polling for new events")
	return cmd
}

func printEvent(e domain.Event) {
	if viper.GetBool("json") {
		_ = printJSON(e)
		return
	}
	fmt.Printf("%d\t%s\t%s\t%s:%s\t%s\n", e.ID, e.TS, e.Type, e.EntityKind, e.EntityID, e.Payload)
}

func apiKeyCmd() *cobra.Command {
	c := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key (shown once)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				key, plain, err := auth.IssueAPIKey(ctx, rt.Repo, currentUser(rt), name, rt.Engine.Clock.Now())
				if err != nil {
					return err
				}
				return printJSONOrTable(map[string]any{"id": key.ID, "name": key.Name, "key": plain})
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label")
	c.AddCommand(create)
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				keys, err := rt.Repo.ListAPIKeys(ctx, currentUser(rt))
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := newTable(table.Row{"ID", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd.Context(), func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Repo.DeleteAPIKey(ctx, currentUser(rt), args[0]); err != nil {
					return err
				}
				fmt.Println("deleted", args[0])
				return nil
			})
		},
	})
	return c
}
