// Command schedview-origin is a development stand-in for the timetable
// backend. It serves weekly schedule pages out of a SQLite database.
package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	_ "github.com/glebarez/go-sqlite"
)

var (
	portFlag           int
	dbFilenameFlag     string
	seedFlag           bool
	verbosityTraceFlag bool
)

func init() {
	flag.IntVar(&portFlag, "port", 9090, "Port to listen on")
	flag.StringVar(&dbFilenameFlag, "db", "timetable.db", "Timetable DB file name (use 'memory' for in-memory db)")
	flag.BoolVar(&seedFlag, "seed", false, "Seed the db with demo lessons")
	flag.BoolVar(&verbosityTraceFlag, "vv", false, "Verbosity: trace logging")
}

type lesson struct {
	Day      string `json:"day"`
	Starts   string `json:"starts"`
	Ends     string `json:"ends"`
	Title    string `json:"title"`
	Location string `json:"location"`
}

func openDB(filename string) *sql.DB {
	if filename == "memory" {
		filename = "file::memory:?cache=shared"
	}
	db, err := sql.Open("sqlite", filename)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS lessons (
		subject_id TEXT,
		day TEXT,
		starts TEXT,
		ends TEXT,
		title TEXT,
		location TEXT
	)`)
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("CREATE INDEX IF NOT EXISTS lessons_subject_day_idx ON lessons (subject_id, day)")
	if err != nil {
		panic(err)
	}
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		panic(err)
	}
	return db
}

func seed(db *sql.DB) error {
	lessons := []struct {
		subjectID string
		lesson
	}{
		{"u1", lesson{"2024-01-01", "09:00", "10:30", "Mathematics", "A101"}},
		{"u1", lesson{"2024-01-02", "11:00", "12:30", "Physics", "B204"}},
		{"u1", lesson{"2024-01-04", "14:00", "15:30", "Chemistry", "Lab 2"}},
		{"u1", lesson{"2024-01-08", "09:00", "10:30", "Mathematics", "A101"}},
		{"u2", lesson{"2024-01-01", "10:00", "11:30", "History", "C12"}},
	}
	for _, l := range lessons {
		_, err := db.Exec(
			"INSERT INTO lessons (subject_id, day, starts, ends, title, location) VALUES (?, ?, ?, ?, ?, ?)",
			l.subjectID, l.Day, l.Starts, l.Ends, l.Title, l.Location,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func timetableHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.URL.Query().Get("user")
		from := r.URL.Query().Get("from")
		to := r.URL.Query().Get("to")
		if user == "" || from == "" || to == "" {
			http.Error(w, "user, from and to are required", http.StatusBadRequest)
			return
		}
		rows, err := db.Query(
			"SELECT day, starts, ends, title, location FROM lessons WHERE subject_id = ? AND day >= ? AND day <= ? ORDER BY day, starts",
			user, from, to,
		)
		if err != nil {
			log.Error().Err(err).Msg("Could not query lessons")
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		defer rows.Close()

		lessons := make([]lesson, 0)
		for rows.Next() {
			var l lesson
			if err := rows.Scan(&l.Day, &l.Starts, &l.Ends, &l.Title, &l.Location); err != nil {
				log.Error().Err(err).Msg("Could not scan lesson")
				http.Error(w, "query failed", http.StatusInternalServerError)
				return
			}
			lessons = append(lessons, l)
		}
		log.Debug().Str("user", user).Str("from", from).Str("to", to).Int("lessons", len(lessons)).Msg("Serving timetable page")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(lessons)
	}
}

func main() {
	flag.Parse()

	logLevel := zerolog.DebugLevel
	if verbosityTraceFlag {
		logLevel = zerolog.TraceLevel
	}
	log.Logger = log.Level(logLevel).Output(zerolog.ConsoleWriter{Out: os.Stdout})

	db := openDB(dbFilenameFlag)
	if seedFlag {
		if err := seed(db); err != nil {
			log.Fatal().Err(err).Msg("Could not seed db")
		}
		log.Info().Msg("Seeded demo lessons")
	}

	r := chi.NewRouter()
	r.Get("/api/timetable", timetableHandler(db))

	log.Info().Msgf("Serving origin timetables on port %d from %s", portFlag, dbFilenameFlag)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", portFlag), r); err != nil {
		log.Fatal().Err(err).Msg("Server exited")
	}
}
