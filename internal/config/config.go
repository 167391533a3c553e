package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	// MongoDB Configuration
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration

	// HTTP Server Configuration
	HTTPPort         string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration

	// Logging Configuration
	LogLevel  string
	LogFormat string

	// CORS Configuration
	CORSAllowedOrigins   string
	CORSAllowedMethods   string
	CORSAllowedHeaders   string
	CORSAllowCredentials bool
	CORSMaxAge           int

	// Scanner Configuration
	ScannerEnabled          bool
	ScanInterval            time.Duration
	DispatchDelay           time.Duration
	DefaultLookaheadMinutes int
	HeartbeatMaxAge         time.Duration
	ExpiringSoonWindow      time.Duration
	StuckTaskAfter          time.Duration

	// Queue Configuration
	LockReleaseAfter time.Duration
	ErrorGracePeriod time.Duration

	// Notification Configuration
	WebhookURL            string
	WebhookUsername       string
	WebhookTimeout        time.Duration
	WebhookRatePerMinute  int
	WebhookMaxAttempts    int
	NotificationsDisabled bool

	// Portal Automation Configuration
	PortalBaseURL        string
	PortalLoginPath      string
	PortalAccountsPath   string
	PortalUsername       string
	PortalPassword       string
	PortalProfileDir     string
	PortalHeadless       bool
	PortalActionTimeout  time.Duration
	PortalSelectorsFile  string
	PortalStatusURL      string
	PortalStatusJSONPath string
	PortalStatusOperator string
	PortalStatusExpected string
	ScreenshotDir        string
	RenewalPeriod        time.Duration

	// Health Monitor Configuration
	MonitorEnabled    bool
	HeartbeatInterval time.Duration
	WatchdogInterval  time.Duration
	RestartDelay      time.Duration

	// Worker Configuration
	WorkerEnabled      bool
	WorkerPollInterval time.Duration
	WorkerMaxAttempts  int
	WorkerRetryBackoff time.Duration
}

// Load reads configuration from environment variables with sensible defaults
func Load() *Config {
	return &Config{
		// MongoDB
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017/renewer?authSource=admin"),
		MongoDatabase: getEnv("MONGO_DATABASE", "renewer"),
		MongoTimeout:  getDurationEnv("MONGO_TIMEOUT_SEC", 10) * time.Second,

		// HTTP Server
		HTTPPort:         getEnv("HTTP_PORT", "8080"),
		HTTPReadTimeout:  getDurationEnv("HTTP_READ_TIMEOUT_SEC", 30) * time.Second,
		HTTPWriteTimeout: getDurationEnv("HTTP_WRITE_TIMEOUT_SEC", 30) * time.Second,

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// CORS
		CORSAllowedOrigins:   getEnv("CORS_ALLOWED_ORIGINS", "*"),
		CORSAllowedMethods:   getEnv("CORS_ALLOWED_METHODS", "GET, POST, DELETE, OPTIONS"),
		CORSAllowedHeaders:   getEnv("CORS_ALLOWED_HEADERS", "*"),
		CORSAllowCredentials: getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		CORSMaxAge:           getIntEnv("CORS_MAX_AGE", 3600),

		// Scanner
		ScannerEnabled:          getBoolEnv("SCANNER_ENABLED", true),
		ScanInterval:            getDurationEnv("SCAN_INTERVAL_SEC", 60) * time.Second,
		DispatchDelay:           getDurationEnv("DISPATCH_DELAY_SEC", 5) * time.Second,
		DefaultLookaheadMinutes: getIntEnv("RENEWAL_LOOKAHEAD_MINUTES", 60),
		HeartbeatMaxAge:         getDurationEnv("HEARTBEAT_MAX_AGE_SEC", 300) * time.Second,
		ExpiringSoonWindow:      getDurationEnv("EXPIRING_SOON_WINDOW_SEC", 300) * time.Second,
		StuckTaskAfter:          getDurationEnv("STUCK_TASK_AFTER_SEC", 900) * time.Second,

		// Queue
		LockReleaseAfter: getDurationEnv("LOCK_RELEASE_AFTER_SEC", 300) * time.Second,
		ErrorGracePeriod: getDurationEnv("ERROR_GRACE_PERIOD_SEC", 300) * time.Second,

		// Notifications
		WebhookURL:            getEnv("WEBHOOK_URL", ""),
		WebhookUsername:       getEnv("WEBHOOK_USERNAME", "Renewer"),
		WebhookTimeout:        getDurationEnv("WEBHOOK_TIMEOUT_SEC", 10) * time.Second,
		WebhookRatePerMinute:  getIntEnv("WEBHOOK_RATE_PER_MINUTE", 30),
		WebhookMaxAttempts:    getIntEnv("WEBHOOK_MAX_ATTEMPTS", 3),
		NotificationsDisabled: getBoolEnv("NOTIFICATIONS_DISABLED", false),

		// Portal automation
		PortalBaseURL:        strings.TrimRight(getEnv("PORTAL_BASE_URL", ""), "/"),
		PortalLoginPath:      getEnv("PORTAL_LOGIN_PATH", "/login"),
		PortalAccountsPath:   getEnv("PORTAL_ACCOUNTS_PATH", "/accounts"),
		PortalUsername:       getEnv("PORTAL_USERNAME", ""),
		PortalPassword:       getEnv("PORTAL_PASSWORD", ""),
		PortalProfileDir:     getEnv("PORTAL_PROFILE_DIR", "./data/browser-profile"),
		PortalHeadless:       getBoolEnv("PORTAL_HEADLESS", true),
		PortalActionTimeout:  getDurationEnv("PORTAL_ACTION_TIMEOUT_SEC", 15) * time.Second,
		PortalSelectorsFile:  getEnv("PORTAL_SELECTORS_FILE", ""),
		PortalStatusURL:      getEnv("PORTAL_STATUS_URL", ""),
		PortalStatusJSONPath: getEnv("PORTAL_STATUS_JSONPATH", ""),
		PortalStatusOperator: getEnv("PORTAL_STATUS_OPERATOR", "exists"),
		PortalStatusExpected: getEnv("PORTAL_STATUS_EXPECTED", ""),
		ScreenshotDir:        getEnv("SCREENSHOT_DIR", "./data/screenshots"),
		RenewalPeriod:        getDurationEnv("RENEWAL_PERIOD_HOURS", 720) * time.Hour,

		// Health monitor
		MonitorEnabled:    getBoolEnv("MONITOR_ENABLED", true),
		HeartbeatInterval: getDurationEnv("HEARTBEAT_INTERVAL_SEC", 30) * time.Second,
		WatchdogInterval:  getDurationEnv("WATCHDOG_INTERVAL_SEC", 60) * time.Second,
		RestartDelay:      getDurationEnv("RESTART_DELAY_SEC", 5) * time.Second,

		// Worker
		WorkerEnabled:      getBoolEnv("WORKER_ENABLED", true),
		WorkerPollInterval: getDurationEnv("WORKER_POLL_INTERVAL_SEC", 10) * time.Second,
		WorkerMaxAttempts:  getIntEnv("WORKER_MAX_ATTEMPTS", 3),
		WorkerRetryBackoff: getDurationEnv("WORKER_RETRY_BACKOFF_SEC", 60) * time.Second,
	}
}

// AutomationEnabled reports whether enough portal configuration is present
// to run the in-process browser session
func (c *Config) AutomationEnabled() bool {
	return c.PortalBaseURL != "" && c.PortalUsername != "" && c.PortalPassword != ""
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
		log.Printf("Warning: Invalid integer value for %s, using default %d", key, defaultValue)
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue int) time.Duration {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return time.Duration(intVal)
		}
		log.Printf("Warning: Invalid duration value for %s, using default %d", key, defaultValue)
	}
	return time.Duration(defaultValue)
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
		log.Printf("Warning: Invalid boolean value for %s, using default %t", key, defaultValue)
	}
	return defaultValue
}
