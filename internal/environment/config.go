package environment

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// EnvConfig holds the deployment-level settings read from the environment.
// CLI flags cover everything batch-specific; this covers the surrounding
// infrastructure.
type EnvConfig struct {
	AWSRegion      string
	NatsURL        string
	SqsResultQueue string
	SqlxConnString string
}

func ReadEnvConfig() *EnvConfig {
	// a missing .env file is fine; the process environment still applies
	_ = godotenv.Load()

	result := &EnvConfig{
		AWSRegion:      getenvDefault("AWS_REGION", "eu-central-1"),
		NatsURL:        os.Getenv("NATS_URL"),
		SqsResultQueue: os.Getenv("SQS_RESULT_QUEUE_URL"),
	}

	dbHost := os.Getenv("DB_HOST")
	if dbHost != "" {
		result.SqlxConnString = fmt.Sprintf(
			`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
			dbHost,
			getenvDefault("DB_PORT", "5432"),
			os.Getenv("DB_USER"),
			os.Getenv("DB_PASS"),
			os.Getenv("DB_NAME"),
			getenvDefault("DB_SSLMODE", "disable"))
	}

	return result
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
