// Command traffic-sim serves traffic simulations.
//
// Without arguments it listens on -host:-port and serves the REST API under
// /api, per-session telemetry on /ws and MCP over HTTP on /mcp. The mcp mode
// (aliases stdio-mcp, mcp-stdio) speaks MCP on stdin/stdout instead and
// proxies to a running server on localhost:8080, or to a private one it
// starts itself. Sessions are restored from -sessions-dir on start and saved
// back on exit.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mark3labs/mcp-go/server"
	"github.com/wricardo/traffic-sim/api"
	"github.com/wricardo/traffic-sim/game/config"
	"github.com/wricardo/traffic-sim/game/service"
	"github.com/wricardo/traffic-sim/game/session"
	"github.com/wricardo/traffic-sim/transport/mcp"
	"github.com/wricardo/traffic-sim/transport/websocket"
	"golang.ngrok.com/ngrok"
	ngrokConfig "golang.ngrok.com/ngrok/config"
)

const (
	Version = "1.0.0"
	AppName = "Traffic Simulation Server"
)

const (
	// defaultAPI is probed by the mcp mode before it starts its own server
	defaultAPI = "http://localhost:8080"

	sessionTTL      = 24 * time.Hour
	cleanupInterval = time.Hour
	syncInterval    = 5 * time.Second
)

var (
	port         = flag.Int("port", 8080, "HTTP server port")
	host         = flag.String("host", "localhost", "HTTP server host")
	configDir    = flag.String("config-dir", getConfigDirDefault(), "Directory containing scenario files")
	sessionsDir  = flag.String("sessions-dir", getSessionsDirDefault(), "Directory where sessions are persisted")
	debug        = flag.Bool("debug", false, "Enable debug logging")
	version      = flag.Bool("version", false, "Show version information")
	ngrokEnabled = flag.Bool("ngrok", false, "Expose the server through an ngrok tunnel")
	ngrokAuth    = flag.String("ngrok-auth", "", "Ngrok auth token (or NGROK_AUTHTOKEN)")
	ngrokDomain  = flag.String("ngrok-domain", "", "Reserved ngrok domain (or NGROK_DOMAIN)")
)

// envOr returns the first non-empty environment variable of names, or fallback
func envOr(fallback string, names ...string) string {
	for _, name := range names {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return fallback
}

func getConfigDirDefault() string { return envOr("configs", "CONFIG_DIR") }

func getSessionsDirDefault() string { return envOr("sessions", "SESSIONS_DIR") }

func init() {
	flag.Usage = func() {
		out := flag.CommandLine.Output()
		fmt.Fprintf(out, "%s v%s\n\n", AppName, Version)
		fmt.Fprintf(out, "Usage: %s [OPTIONS] [server|mcp]\n\n", os.Args[0])
		fmt.Fprintln(out, "Modes:")
		fmt.Fprintln(out, "  server   REST API, WebSocket telemetry and /mcp over HTTP (default; alias http)")
		fmt.Fprintln(out, "  mcp      MCP over stdio (aliases stdio-mcp, mcp-stdio)")
		fmt.Fprintln(out, "\nOptions:")
		flag.PrintDefaults()
	}
}

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}
	flag.Parse()

	if *version {
		fmt.Printf("%s v%s\n", AppName, Version)
		return
	}
	if *debug {
		log.SetFlags(log.LstdFlags | log.Lshortfile)
	}

	mode := "server"
	if flag.NArg() > 0 {
		mode = flag.Arg(0)
	}
	log.Printf("Starting %s v%s (mode: %s)", AppName, Version, mode)

	simService, sessionManager, err := initializeServices()
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}
	defer func() {
		if err := sessionManager.SaveAllSessions(); err != nil {
			log.Printf("Warning: %v", err)
		}
	}()

	switch mode {
	case "server", "http":
		runHTTPServer(simService)
	case "mcp", "stdio-mcp", "mcp-stdio":
		runStdioMCP(simService)
	default:
		log.Printf("Unknown mode %q", mode)
		flag.Usage()
		os.Exit(2)
	}
}

// initializeServices builds the scenario manager, the persisted session
// manager and the simulation service, restoring sessions left on disk.
func initializeServices() (service.SimulationService, *session.Manager, error) {
	scenarios, err := config.NewManager(*configDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create scenario manager: %w", err)
	}

	persistence, err := session.NewFilePersistence(*sessionsDir, scenarios)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create session persistence: %w", err)
	}

	sessions := session.NewManagerWithPersistence(persistence)
	if err := sessions.LoadPersistedSessions(); err != nil {
		log.Printf("Warning: Failed to load persisted sessions: %v", err)
	}

	go expireSessions(sessions)
	go syncSessionFiles(sessions, persistence)

	return service.NewSimulationService(sessions, scenarios), sessions, nil
}

func expireSessions(sessions *session.Manager) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for range ticker.C {
		if n := sessions.CleanupExpiredSessions(sessionTTL); n > 0 {
			log.Printf("Expired %d idle sessions", n)
		}
	}
}

// syncSessionFiles drops in-memory sessions whose file was removed from disk
func syncSessionFiles(sessions *session.Manager, persistence session.SessionPersistence) {
	ticker := time.NewTicker(syncInterval)
	defer ticker.Stop()

	for range ticker.C {
		for _, s := range sessions.List() {
			if persistence.Exists(s.ID) {
				continue
			}
			if err := sessions.DeleteFromMemory(s.ID); err == nil {
				log.Printf("Session %s dropped: file removed", s.ID)
			}
		}
	}
}

// newHandler mounts the REST API and the WebSocket hub at / and MCP at /mcp.
// The MCP tools call back into the REST API at baseURL.
func newHandler(simService service.SimulationService, hub *websocket.Hub, baseURL string) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/", api.NewServer(simService, hub))
	mux.Handle("/mcp", mcpHandler(mcp.NewClient(baseURL).GetMCPServer()))
	return mux
}

// mcpHandler answers one JSON-RPC message per POST
func mcpHandler(srv *server.MCPServer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		defer r.Body.Close()
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "Failed to read request", http.StatusBadRequest)
			return
		}

		data, err := json.Marshal(srv.HandleMessage(r.Context(), body))
		if err != nil {
			http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}
}

func runHTTPServer(simService service.SimulationService) {
	hub := websocket.NewHub()
	go hub.Run()

	addr := net.JoinHostPort(*host, fmt.Sprint(*port))
	handler := newHandler(simService, hub, "http://"+addr)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		log.Printf("Listening on http://%s (REST /api, WebSocket /ws?session=<id>, MCP /mcp)", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	if tunnel, ok := tunnelSettings(); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveTunnel(ctx, tunnel, handler); err != nil {
				log.Printf("Ngrok tunnel: %v", err)
			}
		}()
	}

	<-ctx.Done()
	log.Println("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	wg.Wait()
}

type tunnel struct {
	authToken string
	domain    string
}

// tunnelSettings reads the ngrok flags with their environment fallbacks.
// ok is false when the tunnel is disabled or has no auth token.
func tunnelSettings() (tunnel, bool) {
	enabled := *ngrokEnabled
	if v := os.Getenv("NGROK_ENABLED"); v == "true" || v == "1" {
		enabled = true
	}
	if !enabled {
		return tunnel{}, false
	}

	t := tunnel{authToken: *ngrokAuth, domain: *ngrokDomain}
	if t.authToken == "" {
		t.authToken = envOr("", "NGROK_AUTHTOKEN", "NGROK_AUTH_TOKEN")
	}
	if t.domain == "" {
		t.domain = envOr("", "NGROK_DOMAIN")
	}
	if t.authToken == "" {
		log.Println("Warning: ngrok enabled without an auth token (-ngrok-auth or NGROK_AUTHTOKEN)")
		return tunnel{}, false
	}
	return t, true
}

// serveTunnel serves handler through ngrok until ctx is done
func serveTunnel(ctx context.Context, t tunnel, handler http.Handler) error {
	endpoint := ngrokConfig.HTTPEndpoint()
	if t.domain != "" {
		endpoint = ngrokConfig.HTTPEndpoint(ngrokConfig.WithDomain(t.domain))
	}

	tun, err := ngrok.Listen(ctx, endpoint, ngrok.WithAuthtoken(t.authToken))
	if err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}
	log.Printf("Public URL: %s", tun.URL())

	go func() {
		<-ctx.Done()
		tun.Close()
	}()
	if err := http.Serve(tun, handler); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// apiAvailable reports whether a simulation server answers at baseURL
func apiAvailable(baseURL string) bool {
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(baseURL + "/api/health")
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// runStdioMCP serves MCP on stdio against the default server when one runs,
// otherwise against a private API bound to a random loopback port.
func runStdioMCP(simService service.SimulationService) {
	baseURL := defaultAPI
	if !apiAvailable(baseURL) {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			log.Fatalf("Failed to listen for the internal API: %v", err)
		}
		hub := websocket.NewHub()
		go hub.Run()

		internal := &http.Server{Handler: api.NewServer(simService, hub)}
		go func() {
			if err := internal.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("Internal API error: %v", err)
			}
		}()
		baseURL = "http://" + listener.Addr().String()
	}
	log.Printf("MCP stdio server proxying to %s", baseURL)

	if err := server.ServeStdio(mcp.NewClient(baseURL).GetMCPServer()); err != nil {
		log.Fatalf("MCP stdio server error: %v", err)
	}
}
