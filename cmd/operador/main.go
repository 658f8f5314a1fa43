package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"operador/internal/app"
	"operador/internal/config"
	"operador/internal/db"
	"operador/internal/domain"
	"operador/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "operador",
	Short: "Operador mission tracker",
	Long: `Operador walks you through four missions in order.
- Missions: only one is active at a time; the others are locked or completed.
- Progress: one binary check-in per day. A done day extends the streak, a missed one resets it to zero without ceremony.
- Advance: seven consecutive done days complete the mission and unlock the next.
- Autonomy: completed missions out of four; three or more means you are ready to run alone.
- Ritual: cut the noise, run the 15 minute action, record the result.
- Event log: every write is journaled, view it with 'operador log tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("OPERADOR")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	// Secrets only come from the environment.
	for _, key := range []string{"jwt-secret", "agents-api-key", "redis-addr"} {
		_ = viper.BindEnv(key)
	}
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.Int64("user-id", 0, "user id (defaults to auth.default_user_id)")
	flags.String("log-level", "", "log level override (debug, info, warn, error)")
	for _, name := range []string{"workspace", "json", "user-id", "log-level"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(missionsCmd())
	rootCmd.AddCommand(progressCmd())
	rootCmd.AddCommand(autonomyCmd())
	rootCmd.AddCommand(ritualCmd())
	rootCmd.AddCommand(agentsCmd())
	rootCmd.AddCommand(guidesCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apiKeyCmd())
	rootCmd.AddCommand(serveCmd())
}

// loadConfig reads operador.yml, falling back to defaults, and applies
// environment and flag overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if v := viper.GetString("log-level"); v != "" {
		cfg.Log.Level = v
	}
	if v := viper.GetString("jwt-secret"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := viper.GetString("agents-api-key"); v != "" {
		cfg.Agents.APIKey = v
	}
	if v := viper.GetString("redis-addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withRuntime(ctx context.Context, fn func(context.Context, *app.Runtime) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Sync()
	rt, err := app.Open(ctx, viper.GetString("workspace"), cfg, log)
	if err != nil {
		return err
	}
	defer rt.Close()
	if cfg.Auth.Mode == config.AuthSingle {
		if err := rt.EnsureDefaultUser(ctx); err != nil {
			return err
		}
	}
	if err := fn(ctx, rt); err != nil {
		log.Debug("command failed", zap.Error(err))
		return err
	}
	return nil
}

func currentUser(rt *app.Runtime) int64 {
	if id := viper.GetInt64("user-id"); id > 0 {
		return id
	}
	return rt.Config.Auth.DefaultUserID
}

// missionArg resolves a mission number, or the active mission when zero.
func missionArg(ctx context.Context, rt *app.Runtime, number int) (domain.Mission, error) {
	userID := currentUser(rt)
	if number == 0 {
		return rt.Engine.ActiveMission(ctx, userID)
	}
	return rt.Engine.MissionByNumber(ctx, userID, number)
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

func newTable(header table.Row) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(header)
	return tw
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
