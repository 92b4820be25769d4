package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/store"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "lanexam",
		Short:        "Exam server and terminal client for classroom networks",
		SilenceUsage: true,
	}

	serve := serveCmd()
	root.AddCommand(serve, takeCmd(), exportCmd(), useraddCmd())

	// Make "serve" the default when no subcommand is given.
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	return root
}

func addLogFlags(cmd *cobra.Command, level string) {
	f := cmd.Flags()
	f.String("log-level", level, "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
	f.String("log-file", "", "Also write logs to this file, rotated by size")
}

func addDBFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("db", "lanexam.db", "SQLite database path")
	f.String("db-driver", store.DriverSQLite, "Database driver (sqlite, pgx)")
	f.String("db-dsn", "", "Connection string for the pgx driver")
}

// setupLogging installs the default slog logger. Console output goes to
// console; with --log-file the records are also written to a rotated file.
func setupLogging(v *viper.Viper, console io.Writer) {
	var logLevel slog.Level
	switch strings.ToLower(v.GetString("log-level")) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	out := console
	if path := v.GetString("log-file"); path != "" {
		out = io.MultiWriter(console, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		})
	}

	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(v.GetString("log-format")) {
	case "json":
		logHandler = slog.NewJSONHandler(out, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(out, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("LANEXAM")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetConfigName("lanexam")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/lanexam")
	v.AddConfigPath("/etc/lanexam")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			slog.Warn("error reading config file", "error", err)
		}
	} else {
		slog.Debug("loaded config file", "path", v.ConfigFileUsed())
	}

	return v
}

// openStore opens the server database selected by --db-driver.
func openStore(v *viper.Viper) (*store.Store, error) {
	switch driver := strings.ToLower(v.GetString("db-driver")); driver {
	case "", store.DriverSQLite:
		return store.New(v.GetString("db"))
	case store.DriverPostgres, "postgres":
		dsn := v.GetString("db-dsn")
		if dsn == "" {
			return nil, errors.New("--db-dsn (or LANEXAM_DB_DSN) is required for the pgx driver")
		}
		return store.Open(store.DriverPostgres, dsn)
	default:
		return nil, fmt.Errorf("unknown database driver %q", driver)
	}
}
