package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/schedview/schedview/pagecache"
	"github.com/schedview/schedview/timetable"
)

const dateFormat = "2006-01-02"

var (
	portFlag           int
	originFlag         string
	configFilenameFlag string
	verbosityTraceFlag bool
)

type envConfig struct {
	Port   int    `env:"SCHEDVIEW_PORT" envDefault:"8080"`
	Origin string `env:"SCHEDVIEW_ORIGIN"`
	Token  string `env:"SCHEDVIEW_TOKEN"`
	Config string `env:"SCHEDVIEW_CONFIG"`
}

func init() {
	flag.IntVar(&portFlag, "port", 0, "Port to listen on (overrides env)")
	flag.StringVar(&originFlag, "origin", "", "Timetable backend URL (overrides env)")
	flag.StringVar(&configFilenameFlag, "config", "", "Path to cache config file")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	var envCfg envConfig
	if err := env.Parse(&envCfg); err != nil {
		log.Fatal().Err(err).Msg("Could not parse environment")
	}
	if portFlag != 0 {
		envCfg.Port = portFlag
	}
	if originFlag != "" {
		envCfg.Origin = originFlag
	}
	if configFilenameFlag != "" {
		envCfg.Config = configFilenameFlag
	}
	if envCfg.Origin == "" {
		log.Fatal().Msg("Please specify the timetable backend origin")
	}

	cacheCfg := pagecache.Config{Logger: &log.Logger}
	if envCfg.Config != "" {
		fileCfg, err := loadConfig(envCfg.Config)
		if err != nil {
			log.Fatal().Err(err).Str("file", envCfg.Config).Msg("Could not load config file")
		}
		cacheCfg.TTL = fileCfg.ttl
		cacheCfg.MaxEntries = fileCfg.maxEntries
		cacheCfg.PrefetchDelay = fileCfg.prefetchDelay
	}

	client := timetable.NewClient(timetable.Config{
		BaseURL: envCfg.Origin,
		Token:   envCfg.Token,
		Logger:  &log.Logger,
	})
	cacheCfg.Fetch = func(ctx context.Context, req pagecache.FetchRequest) ([]byte, error) {
		return client.FetchPage(ctx, req.SubjectID, req.WindowStart, req.WindowEnd, req.ViewingAsSelf)
	}
	cache := pagecache.CreateCache(cacheCfg)

	r := chi.NewRouter()
	r.Get("/api/timetable/{subjectID}", readTimetable(cache))
	r.Get("/api/cache/stats", cacheStats(cache))
	r.Delete("/api/cache", invalidateCache(cache))

	log.Info().Msgf("Serving timetables on port %d from %s", envCfg.Port, envCfg.Origin)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", envCfg.Port), r); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}

func readTimetable(cache *pagecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		subjectID := chi.URLParam(r, "subjectID")
		from, err := time.Parse(dateFormat, r.URL.Query().Get("from"))
		if err != nil {
			http.Error(w, "invalid or missing 'from' date", http.StatusBadRequest)
			return
		}
		to, err := time.Parse(dateFormat, r.URL.Query().Get("to"))
		if err != nil {
			http.Error(w, "invalid or missing 'to' date", http.StatusBadRequest)
			return
		}
		viewerID := r.Header.Get("X-Viewer-Id")
		viewingAsSelf := viewerID != "" && viewerID == subjectID

		ctx := r.Context()
		if token := bearerToken(r); token != "" {
			ctx = timetable.WithToken(ctx, token)
		}

		payload, err := cache.Read(ctx, subjectID, from, to, viewingAsSelf)
		if err != nil {
			writeFetchError(w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(payload)
	}
}

func cacheStats(cache *pagecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(cache.Stats()); err != nil {
			log.Error().Err(err).Msg("Could not write stats")
		}
	}
}

func invalidateCache(cache *pagecache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cache.Invalidate(r.URL.Query().Get("subject"))
		w.WriteHeader(http.StatusNoContent)
	}
}

// writeFetchError maps a cold-fetch failure to a client response. Backend
// status and Retry-After hints are passed through so the UI layer can apply
// its own retry policy.
func writeFetchError(w http.ResponseWriter, err error) {
	var statusErr *timetable.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.RetryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(statusErr.RetryAfter/time.Second)))
		}
		http.Error(w, statusErr.Error(), statusErr.StatusCode)
		return
	}
	http.Error(w, "could not fetch timetable", http.StatusBadGateway)
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	auth := r.Header.Get("Authorization")
	if len(auth) > len(prefix) && auth[:len(prefix)] == prefix {
		return auth[len(prefix):]
	}
	return ""
}
