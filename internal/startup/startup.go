package startup

import (
	"fmt"
	"os"
	"runtime"
	"sort"
	"strings"
	"time"

	"hls-ingest/internal/logging"

	"github.com/gorilla/mux"
)

// Build-time variables (injected via -ldflags)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
	GoVersion = runtime.Version()
)

// BuildInfo contains version and build information
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
	OS        string `json:"os"`
	Arch      string `json:"arch"`
}

// GetBuildInfo returns the current build information
func GetBuildInfo() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: GoVersion,
		OS:        runtime.GOOS,
		Arch:      runtime.GOARCH,
	}
}

const rule = "------------------------------------------------------------"

// section prints a titled block header.
func section(title string, args ...interface{}) {
	logging.Info("")
	logging.Info(rule)
	logging.Info(title, args...)
	logging.Info(rule)
}

// RouteInfo describes a registered route
type RouteInfo struct {
	Method string
	Path   string
	Name   string
}

// GetRoutes lists the routes registered on router. Routes without a method
// matcher (prefix handlers) are reported with method "*".
func GetRoutes(router *mux.Router) ([]RouteInfo, error) {
	var routes []RouteInfo

	err := router.Walk(func(route *mux.Route, _ *mux.Router, _ []*mux.Route) error {
		path, err := route.GetPathTemplate()
		if err != nil {
			// Prefix-only routes have no template.
			if path, err = route.GetPathRegexp(); err != nil {
				return nil
			}
		}

		methods, err := route.GetMethods()
		if err != nil {
			methods = []string{"*"}
		}
		for _, m := range methods {
			routes = append(routes, RouteInfo{Method: m, Path: path, Name: route.GetName()})
		}
		return nil
	})

	return routes, err
}

// routeGroup returns the first path segment, or "api/<name>" for API routes.
func routeGroup(path string) string {
	parts := strings.SplitN(strings.TrimPrefix(path, "/"), "/", 3)
	if parts[0] == "api" && len(parts) > 1 {
		return "api/" + parts[1]
	}
	if parts[0] == "" {
		return "root"
	}
	return parts[0]
}

// LogHTTPRoutes logs the registered routes grouped by prefix, followed by
// the access log settings.
func LogHTTPRoutes(router *mux.Router, logStaticFiles, logHealthChecks bool) {
	section("HTTP SERVER SETUP")

	routes, err := GetRoutes(router)
	if err != nil {
		logging.Warn("  error walking routes: %v", err)
	}

	groups := make(map[string][]RouteInfo)
	for _, r := range routes {
		g := routeGroup(r.Path)
		groups[g] = append(groups[g], r)
	}
	names := make([]string, 0, len(groups))
	for g := range groups {
		names = append(names, g)
	}
	sort.Strings(names)

	logging.Info("  %d routes in %d groups", len(routes), len(groups))
	for _, g := range names {
		logging.Debug("  [%s]", g)
		for _, r := range groups[g] {
			logging.Debug("    %-6s %s", r.Method, r.Path)
		}
	}

	logging.Info("  Access log static files:  %s", onOff(logStaticFiles, "LOG_STATIC_FILES"))
	logging.Info("  Access log health checks: %s", onOff(logHealthChecks, "LOG_HEALTH_CHECKS"))
}

func onOff(v bool, key string) string {
	if v {
		return "ON"
	}
	return fmt.Sprintf("OFF (set %s=true to enable)", key)
}

// LogLedgerInit logs job ledger initialization
func LogLedgerInit(duration time.Duration, interrupted int64) {
	section("JOB LEDGER")
	logging.Info("  [OK] Ledger opened in %v", duration)
	if interrupted > 0 {
		logging.Warn("  Marked %d unfinished job(s) from a previous run as failed", interrupted)
	}
}

// ServerConfig holds configuration for the server startup log
type ServerConfig struct {
	Port            string
	MetricsPort     string
	MetricsEnabled  bool
	StartupDuration time.Duration
}

// LogServerStarted logs the listening endpoints.
func LogServerStarted(config ServerConfig) {
	section("SERVER STARTED")
	logging.Info("  Startup time:  %v", config.StartupDuration)
	logging.Info("  Upload:        POST http://localhost:%s/upload", config.Port)
	logging.Info("  Streams:       http://localhost:%s/videos/", config.Port)
	logging.Info("  Thumbnails:    http://localhost:%s/thumbnails/", config.Port)
	logging.Info("  Jobs:          http://localhost:%s/api/jobs", config.Port)
	if config.MetricsEnabled {
		logging.Info("  Metrics:       http://localhost:%s/metrics", config.MetricsPort)
	} else {
		logging.Info("  Metrics:       DISABLED")
	}
	logging.Info("")
	logging.Info("  Press Ctrl+C to stop the server")
	logging.Info(rule)
}

// LogShutdownInitiated logs shutdown start
func LogShutdownInitiated(signal string) {
	section("SHUTDOWN INITIATED (received %s)", signal)
}

// LogShutdownStep logs a shutdown step
func LogShutdownStep(step string) {
	logging.Debug("  %s...", step)
}

// LogShutdownStepComplete logs a completed shutdown step
func LogShutdownStepComplete(step string) {
	logging.Info("  [OK] %s", step)
}

// LogShutdownComplete logs shutdown completion
func LogShutdownComplete() {
	logging.Info("  [OK] Shutdown complete")
}

// LogFatal logs a fatal error and exits
func LogFatal(format string, args ...interface{}) {
	logging.Fatal(format, args...)
}

func printBanner() {
	banner := `
------------------------------------------------------------
    __  ____   _____    ____                      __
   / / / / /  / ___/   /  _/___  ____ ____  _____/ /_
  / /_/ / /   \__ \    / // __ \/ __ '/ _ \/ ___/ __/
 / __  / /______/ /  _/ // / / / /_/ /  __(__  ) /_
/_/ /_/_____/____/  /___/_/ /_/\__, /\___/____/\__/
                              /____/
------------------------------------------------------------`
	fmt.Println(banner)
	logging.Info("  Version:    %s", Version)
	logging.Info("  Commit:     %s", Commit)
	logging.Info("  Build Time: %s", BuildTime)
	logging.Info("  Started:    %s", time.Now().Format(time.RFC1123))
}

func logSystemInfo() {
	section("SYSTEM INFORMATION")
	logging.Info("  Go version:      %s", runtime.Version())
	logging.Info("  OS/Arch:         %s/%s", runtime.GOOS, runtime.GOARCH)
	logging.Info("  CPUs available:  %d", runtime.NumCPU())
	logging.Info("  GOMAXPROCS:      %d", runtime.GOMAXPROCS(0))

	if runtime.GOMAXPROCS(0) < runtime.NumCPU() {
		logging.Info("  (Container CPU limit detected)")
	}

	if wd, err := os.Getwd(); err == nil {
		logging.Debug("  Working dir:     %s", wd)
	}
	if hostname, err := os.Hostname(); err == nil {
		logging.Debug("  Hostname:        %s", hostname)
	}
}
