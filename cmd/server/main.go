/*
main.go - Application entry point

PURPOSE:

	Initializes and starts the classroom attendance and payroll server.
	Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
 1. Parse command-line flags
 2. Load the business timezone
 3. Initialize SQLite store
 4. Create API handler with dependencies
 5. Start the cap enforcement sweeper
 6. Start server with graceful shutdown

COMMAND-LINE FLAGS:

	-port   HTTP server port (default: 8080)
	-db     SQLite database path (default: attendance.db)
	        Use ":memory:" for in-memory database
	-tz     IANA timezone for the business day (default: America/Los_Angeles)
	-sweep  Interval between automatic cap enforcement sweeps (default: 1h)

GRACEFUL SHUTDOWN:

	On SIGINT/SIGTERM:
	1. Stop the sweeper (waits for an in-flight sweep)
	2. Stop accepting new connections
	3. Wait for active requests to complete (30s timeout)
	4. Close database connection
	5. Exit

EXAMPLES:

	# Run with file database
	./server -db="./data/classroom.db"

	# Run in New York time with a 15-minute sweep
	./server -tz="America/New_York" -sweep=15m

SEE ALSO:
  - api/server.go: Router configuration
  - api/sweeper.go: Background cap enforcement
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timwonderer/classroom-economy-sub001/api"
	"github.com/timwonderer/classroom-economy-sub001/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "attendance.db", "SQLite database path")
	tzName := flag.String("tz", "America/Los_Angeles", "IANA timezone for the business day")
	sweepInterval := flag.Duration("sweep", 1*time.Hour, "Cap enforcement sweep interval")
	flag.Parse()

	// Business timezone. The cap window (midnight to midnight) is
	// computed in this zone; everything else runs in UTC.
	zone, err := time.LoadLocation(*tzName)
	if err != nil {
		log.Fatalf("Failed to load timezone %q: %v", *tzName, err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler
	handler := api.NewHandler(store, zone)

	// Start background cap enforcement
	sweeper := api.NewCapSweeper(handler)
	sweeper.CheckInterval = *sweepInterval
	sweeper.Start()
	defer sweeper.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d (business zone %s)", *port, zone)
		log.Printf("API available at http://localhost:%d/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
