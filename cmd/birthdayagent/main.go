package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/api"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/automation/browser"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/classifier"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/config"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/coordinator"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/domain"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/history"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/logging"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/notify"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/reply"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/retry"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/scheduler"
	"github.com/SadManFahIm/Birthday-Wishes-Agent/internal/session"
)

func main() {
	os.Exit(run())
}

// run returns the process exit code so deferred cleanup, including the
// browser, always happens before exit.
func run() int {
	var (
		configPath = flag.String("config", "", "config file (default ./config.yaml when present)")
		addr       = flag.String("addr", "", "HTTP bind address, overrides config")
		dbPath     = flag.String("db", "", "SQLite DB path, overrides config")
		taskName   = flag.String("task", "", "run one task (wish-birthdays, reply-to-wishes, follower-check) and exit")
		debug      = flag.Bool("debug", false, "expose pprof handlers")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})

	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error().Err(err).Msg("load config")
		return 1
	}
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	logCloser, err := logging.Setup(cfg.Log)
	if err != nil {
		log.Error().Err(err).Msg("set up logging")
		return 1
	}
	defer logCloser.Close()

	loc, err := cfg.Location()
	if err != nil {
		log.Error().Err(err).Msg("resolve timezone")
		return 1
	}

	db, err := history.Open(cfg.DBPath)
	if err != nil {
		log.Error().Err(err).Msg("open history")
		return 1
	}
	defer db.Close()
	store := history.NewSQLiteStore(db)
	if n, err := store.RecoverStale(context.Background(), time.Now()); err == nil && n > 0 {
		log.Info().Int("recovered", n).Msg("marked interrupted runs as aborted")
	}

	settings, err := coordinator.LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Error().Err(err).Msg("load settings")
		return 1
	}
	cls, err := classifier.Load(cfg.PhrasesFile)
	if err != nil {
		log.Error().Err(err).Msg("load phrase table")
		return 1
	}
	log.Info().Strs("languages", cls.Languages()).Msg("phrase table loaded")
	templates, err := reply.LoadTemplates(cfg.RepliesFile)
	if err != nil {
		log.Error().Err(err).Msg("load reply templates")
		return 1
	}
	var replies reply.Writer = templates
	if cfg.OpenAI.APIKey != "" {
		replies = reply.NewOpenAI(cfg.OpenAI, templates)
	}

	driver := browser.New(cfg.Browser)
	defer func() {
		if err := driver.Close(); err != nil {
			log.Warn().Err(err).Msg("close browser")
		}
	}()

	coord := coordinator.New(coordinator.Deps{
		Agent:            driver,
		History:          store,
		Session:          session.NewTracker(cfg.SessionFile, cfg.SessionValidity),
		Retry:            retry.NewExecutor(cfg.Retry.MaxAttempts, cfg.Retry.Delay),
		Classifier:       cls,
		Replies:          replies,
		Notifier:         notify.Multi{notify.NewTelegram(cfg.Telegram), notify.NewEmail(cfg.Email)},
		Location:         loc,
		MaxRepliesPerRun: cfg.MaxRepliesPerRun,
		FollowerProfile:  cfg.GitHubURL,
	}, settings)
	ctl := coordinator.NewControl(coord, store, cfg.SettingsFile, cfg.Log.File)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewService(ctl.Schedule, loc)

	if *taskName != "" {
		var result domain.Run
		err := sched.TriggerNow(ctx, *taskName, func(ctx context.Context) (err error) {
			result, err = coord.Run(ctx, *taskName)
			return err
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Str("task", *taskName).Str("state", string(result.State)).Msg("run did not complete")
			return 1
		}
		log.Info().Str("task", *taskName).Str("state", string(result.State)).Int("sent", result.Sent).Msg("done")
		return 0
	}

	ctl.OnScheduleChange(sched.Reschedule)
	srv := &http.Server{Addr: cfg.Addr, Handler: api.NewServerWithDebug(ctl, *debug)}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := sched.RunForever(gctx, "daily", func(ctx context.Context) error {
			var errs []error
			for _, name := range cfg.ScheduledTasks {
				if _, err := coord.Run(ctx, name); err != nil {
					errs = append(errs, err)
				}
			}
			return errors.Join(errs...)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		coord.Cancel()
		ctxTimeout, cancelTimeout := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelTimeout()
		return srv.Shutdown(ctxTimeout)
	})

	code := 0
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("agent stopped with error")
		code = 1
	}
	coord.Wait()
	return code
}
