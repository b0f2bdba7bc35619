package main

import (
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	addr := flag.String("addr", ":8080", "HTTP listen address")
	configPath := flag.String("config", "", "Path to JSON tuning file (default: built-in tuning)")
	dbPath := flag.String("db", "", "SQLite journal path, overrides the config (\"-\" disables the journal)")
	password := flag.String("password", os.Getenv("NEEDLE_PASSWORD"), "Operator password required to open sandboxes (default: $NEEDLE_PASSWORD)")
	clientDir := flag.String("client", "", "Path to a viewer client directory to serve")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		log.Fatalf("invalid log level %q: %v", *logLevel, err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	switch *dbPath {
	case "":
	case "-":
		cfg.Journal.Path = ""
	default:
		cfg.Journal.Path = *dbPath
	}

	var db *DB
	var journal *Journal
	if cfg.Journal.Path != "" {
		db, err = OpenDB(cfg.Journal.Path)
		if err != nil {
			log.Fatalf("open journal database: %v", err)
		}
		defer db.Close()
		journal = NewJournal(db, cfg.Journal)
		defer journal.Close()
		log.Printf("Journaling needle events to %s", cfg.Journal.Path)
	}

	auth, err := NewAuth(db, *password)
	if err != nil {
		log.Fatalf("auth: %v", err)
	}
	if auth.Required() {
		log.Printf("Operator password set, viewers must log in")
	}

	sessions := NewSessionManager(cfg, journal)
	hub := NewHub(sessions, auth)
	go hub.Run()

	mux := SetupRoutes(hub, journal, *clientDir)

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	server := &http.Server{Addr: *addr, Handler: mux}

	go func() {
		log.Printf("Server starting on %s", *addr)
		if *clientDir != "" {
			log.Printf("Serving client files from %s", *clientDir)
		}
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("ListenAndServe: %v", err)
		}
	}()

	<-stop
	log.Println("Shutting down...")
	server.Close()
	hub.Stop()
	sessions.StopAll()
}
