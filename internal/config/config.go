package config

import (
	"log"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// CronSecret protects the job entry points invoked by external schedulers.
	// Empty means the endpoints are open (local development only).
	CronSecret  string
	CronEnabled bool

	// Platform-level Twilio credentials, used when an org has none of its own.
	TwilioAccountSID string
	TwilioAuthToken  string

	// EncryptionKey unlocks per-org provider credentials stored at rest.
	EncryptionKey string

	// Base URL for the Twilio status callback.
	PublicBaseURL string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:             getEnv("PORT", "8080"),
		JWTSecret:        getEnv("JWT_SECRET", "secret"),
		MongoURI:         getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:           getEnv("DB_NAME", "coachkit"),
		SkipAuth:         getEnv("SKIP_AUTH", "false") == "true",
		Environment:      getEnv("ENVIRONMENT", "development"),
		AppId:            getEnv("APP_ID", "coachkit"),
		CronSecret:       getEnv("CRON_SECRET", ""),
		CronEnabled:      getEnv("CRON_ENABLED", "true") == "true",
		TwilioAccountSID: getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:  getEnv("TWILIO_AUTH_TOKEN", ""),
		EncryptionKey:    getEnv("ENCRYPTION_KEY", ""),
		PublicBaseURL:    getEnv("PUBLIC_BASE_URL", "http://localhost:8080"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
