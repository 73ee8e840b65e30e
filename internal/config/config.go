package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port        string
	Env         string
	LogLevel    string
	LogFormat   string
	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Inbound handling
	DebounceDelay      time.Duration
	DedupeBackend      string
	DedupeSize         int
	DedupeTTL          time.Duration
	PhoneDefaultRegion string
	WebhookRateLimit   float64
	WebhookRateBurst   int

	// Text understanding
	LLMProvider    string
	GeminiAPIKey   string
	GeminiModel    string
	BedrockModelID string
	OpenAIAPIKey   string
	OpenAIModel    string
	OpenAIBaseURL  string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Calendar and business hours
	CalendarProvider      string
	GoogleCalendarID      string
	GoogleCredentialsFile string
	BusinessTimezone      string
	WorkStartHour         int
	WorkEndHour           int
	WorkDays              []time.Weekday
	MeetingDuration       time.Duration
	SlotDaysAhead         int
	SlotCount             int
	ReminderSchedule      string

	// Qualification
	SchedulingOfferAfter   int
	MinAnnualRevenue       int64
	WebsiteResearchEnabled bool

	// WhatsApp transport
	WhatsAppTransport  string
	WhatsAppGatewayURL string
	WhatsAppAPIKey     string
	WhatsAppInstance   string
	WhatsmeowStorePath string

	// Notifications
	EmailProvider    string
	SalesNotifyEmail string
	SendGridAPIKey   string
	EmailFrom        string
	EmailFromName    string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "json"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		DebounceDelay:      getEnvAsDuration("DEBOUNCE_DELAY", 3*time.Second),
		DedupeBackend:      strings.ToLower(getEnv("DEDUPE_BACKEND", "memory")),
		DedupeSize:         getEnvAsInt("DEDUPE_SIZE", 5000),
		DedupeTTL:          getEnvAsDuration("DEDUPE_TTL", 20*time.Minute),
		PhoneDefaultRegion: strings.ToUpper(getEnv("PHONE_DEFAULT_REGION", "BR")),
		WebhookRateLimit:   getEnvAsFloat("WEBHOOK_RATE_LIMIT", 20),
		WebhookRateBurst:   getEnvAsInt("WEBHOOK_RATE_BURST", 40),

		LLMProvider:    strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		BedrockModelID: getEnv("BEDROCK_MODEL_ID", ""),
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		OpenAIModel:    getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIBaseURL:  getEnv("OPENAI_BASE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CalendarProvider:      strings.ToLower(getEnv("CALENDAR_PROVIDER", "memory")),
		GoogleCalendarID:      getEnv("GOOGLE_CALENDAR_ID", "primary"),
		GoogleCredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		BusinessTimezone:      getEnv("BUSINESS_TIMEZONE", "America/Sao_Paulo"),
		WorkStartHour:         getEnvAsInt("WORK_START_HOUR", 9),
		WorkEndHour:           getEnvAsInt("WORK_END_HOUR", 18),
		WorkDays:              getEnvAsWeekdays("WORK_DAYS", []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday}),
		MeetingDuration:       getEnvAsDuration("MEETING_DURATION", time.Hour),
		SlotDaysAhead:         getEnvAsInt("SLOT_DAYS_AHEAD", 5),
		SlotCount:             getEnvAsInt("SLOT_COUNT", 3),
		ReminderSchedule:      getEnv("REMINDER_SCHEDULE", "*/5 * * * *"),

		SchedulingOfferAfter:   getEnvAsInt("SCHEDULING_OFFER_AFTER", 2),
		MinAnnualRevenue:       int64(getEnvAsInt("MIN_ANNUAL_REVENUE", 600000)),
		WebsiteResearchEnabled: getEnvAsBool("WEBSITE_RESEARCH_ENABLED", true),

		WhatsAppTransport:  strings.ToLower(getEnv("WHATSAPP_TRANSPORT", "auto")),
		WhatsAppGatewayURL: getEnv("WHATSAPP_GATEWAY_URL", ""),
		WhatsAppAPIKey:     getEnv("WHATSAPP_API_KEY", ""),
		WhatsAppInstance:   getEnv("WHATSAPP_INSTANCE", ""),
		WhatsmeowStorePath: getEnv("WHATSMEOW_STORE_PATH", ""),

		EmailProvider:    strings.ToLower(getEnv("EMAIL_PROVIDER", "none")),
		SalesNotifyEmail: getEnv("SALES_NOTIFY_EMAIL", ""),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		EmailFrom:        getEnv("EMAIL_FROM", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "SDR Agent"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsWeekdays parses a comma separated list of weekday numbers
// (0=Sunday .. 6=Saturday). Invalid entries fall back to the default list.
func getEnvAsWeekdays(key string, defaultValue []time.Weekday) []time.Weekday {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	var days []time.Weekday
	for _, part := range strings.Split(valueStr, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || n < 0 || n > 6 {
			return defaultValue
		}
		days = append(days, time.Weekday(n))
	}
	if len(days) == 0 {
		return defaultValue
	}
	return days
}
