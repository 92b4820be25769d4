package main

import (
	"bytes"
	"context"
	"crypto/sha256"
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

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/ianlabicani/lan-exam-web-sub000/internal/examcache"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/handler"
	appI18n "github.com/ianlabicani/lan-exam-web-sub000/internal/i18n"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/llm"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/llm/prompts"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/metrics"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/model"
	"github.com/ianlabicani/lan-exam-web-sub000/internal/store"
)

const sessionCleanupInterval = time.Hour

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the exam server",
		RunE:  runServe,
	}
	f := cmd.Flags()
	f.StringP("addr", "a", ":8080", "HTTP listen address")
	addDBFlags(cmd)
	f.StringSliceP("exams", "e", nil, "Exam JSON files to import (repeatable)")
	f.StringP("lang", "l", "en", "Default UI language (en, fil)")
	f.String("teacher-username", "teacher", "Username of the seeded teacher account")
	f.String("teacher-password", "", "Initial teacher password (or set LANEXAM_TEACHER_PASSWORD)")
	f.String("llm-url", "", "OpenAI-compatible API base URL for essay score suggestions (empty disables)")
	f.String("llm-key", "ollama", "API key for the LLM")
	f.String("llm-model", "llama3.2", "LLM model name")
	f.String("prompt-variant", string(prompts.PromptStandard), "Suggestion prompt variant (strict, standard, lenient)")
	f.String("redis-addr", "", "Redis address for the exam cache (empty disables)")
	f.String("redis-password", "", "Redis password")
	f.Int("redis-db", 0, "Redis database number")
	f.Duration("cache-ttl", examcache.DefaultTTL, "Lifetime of cached exams")
	f.StringSlice("cors-origins", nil, "Browser origins allowed to call the API")
	f.Bool("secure-cookies", false, "Set Secure flag on session cookies (enable behind HTTPS)")
	addLogFlags(cmd, "info")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	v := viperForCmd(cmd)
	setupLogging(v, os.Stderr)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(v)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := seedTeacher(ctx, db, v.GetString("teacher-username"), v.GetString("teacher-password")); err != nil {
		return fmt.Errorf("seed teacher: %w", err)
	}
	if err := loadExams(ctx, db, v.GetStringSlice("exams")); err != nil {
		return fmt.Errorf("load exams: %w", err)
	}

	lang := v.GetString("lang")
	if err := appI18n.Init(lang); err != nil {
		return fmt.Errorf("init i18n: %w", err)
	}
	slog.Info("translations loaded", "languages", appI18n.Supported())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := handler.Options{
		Metrics:        metrics.New(reg),
		AllowedOrigins: v.GetStringSlice("cors-origins"),
		SecureCookies:  v.GetBool("secure-cookies"),
	}

	if url := v.GetString("llm-url"); url != "" {
		variant := strings.ToLower(strings.TrimSpace(v.GetString("prompt-variant")))
		if !prompts.IsValidVariant(variant) {
			slog.Warn("invalid prompt-variant, using standard", "variant", variant)
			variant = string(prompts.PromptStandard)
		}
		opts.LLM = llm.New(url, v.GetString("llm-key"), v.GetString("llm-model"), prompts.PromptVariant(variant))
		slog.Info("score suggestions enabled", "url", url, "model", v.GetString("llm-model"), "variant", variant)
	}

	if addr := v.GetString("redis-addr"); addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: v.GetString("redis-password"),
			DB:       v.GetInt("redis-db"),
		})
		defer rdb.Close()
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			slog.Warn("redis unreachable, exams are read from the database until it recovers", "addr", addr, "error", err)
		}
		cancel()
		cache := examcache.New(rdb, db, v.GetDuration("cache-ttl"))
		opts.Exams = cache
		opts.Invalidator = cache
		slog.Info("exam cache enabled", "addr", addr)
	}

	h := handler.New(db, opts)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(appI18n.Middleware(lang))
	h.Routes(r)

	srv := &http.Server{
		Addr:              v.GetString("addr"),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("starting server", "addr", srv.Addr, "driver", v.GetString("db-driver"), "lang", lang)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		slog.Info("shutting down server")
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		cleanupSessions(gctx, db)
		return nil
	})
	return g.Wait()
}

// cleanupSessions drops expired login sessions until ctx is done.
func cleanupSessions(ctx context.Context, db *store.Store) {
	t := time.NewTicker(sessionCleanupInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := db.CleanupExpiredSessions(ctx); err != nil {
				slog.Warn("cleanup expired sessions", "error", err)
			}
		}
	}
}

// parseExamFile accepts a single exam object or an array of exams.
func parseExamFile(data []byte) ([]model.ExamImport, error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var exams []model.ExamImport
		if err := json.Unmarshal(data, &exams); err != nil {
			return nil, err
		}
		return exams, nil
	}
	var e model.ExamImport
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return []model.ExamImport{e}, nil
}

func loadExams(ctx context.Context, db *store.Store, paths []string) error {
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		hash := sha256sum(data)
		storedHash, err := db.GetImportedFileHash(ctx, path)
		if err != nil {
			return fmt.Errorf("check import status for %s: %w", path, err)
		}
		if storedHash == hash {
			slog.Info("exam file unchanged, skipping", "path", path)
			continue
		}
		if storedHash != "" {
			slog.Warn("exam file changed since last import, skipping to avoid breaking existing attempts",
				"path", path)
			continue
		}

		imports, err := parseExamFile(data)
		if err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
		for _, imp := range imports {
			exam := imp.ToExam()
			if err := model.ValidateExam(exam); err != nil {
				return fmt.Errorf("exam %q in %s: %w", exam.Title, path, err)
			}
			if exam.ID != "" {
				if _, err := db.GetExam(ctx, exam.ID); err == nil {
					slog.Warn("exam already exists, skipping", "path", path, "exam_id", exam.ID)
					continue
				} else if !errors.Is(err, model.ErrNotFound) {
					return err
				}
			}
			created, err := db.CreateExam(ctx, exam)
			if err != nil {
				return fmt.Errorf("insert exam from %s: %w", path, err)
			}
			slog.Info("imported exam", "path", path, "exam_id", created.ID, "items", len(created.Items))
		}

		if err := db.SetImportedFileHash(ctx, path, hash); err != nil {
			return fmt.Errorf("record import for %s: %w", path, err)
		}
	}
	return nil
}

func sha256sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

func seedTeacher(ctx context.Context, db *store.Store, username, password string) error {
	count, err := db.UserCount(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	if password == "" {
		return errors.New("teacher password is required: set --teacher-password flag or LANEXAM_TEACHER_PASSWORD env var")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash teacher password: %w", err)
	}
	_, err = db.CreateUser(ctx, model.User{
		Username:     username,
		DisplayName:  "Teacher",
		PasswordHash: string(hash),
		Role:         model.UserRoleTeacher,
		Active:       true,
	})
	if err != nil {
		return fmt.Errorf("create teacher user: %w", err)
	}
	slog.Info("seeded teacher account", "username", username)
	return nil
}
