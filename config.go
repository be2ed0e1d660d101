package quizforge

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the process configuration shared by the binaries
type Config struct {
	OpenAIAPIKey       string
	OpenAIModel        string
	BucketName         string
	BucketRegion       string
	KnowledgeDir       string
	DBPath             string
	RedisAddr          string
	RedisChannelPrefix string
	JWTSecret          string
	SessionSecret      string
	Port               string
	LogMode            string
	LLMLogDir          string
	ProgressRetention  time.Duration
}

// LoadConfig reads .env (if present) and then the environment
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	retentionHours, err := strconv.Atoi(getenv("PROGRESS_RETENTION_HOURS", "24"))
	if err != nil || retentionHours <= 0 {
		return nil, fmt.Errorf("PROGRESS_RETENTION_HOURS must be a positive integer")
	}

	return &Config{
		OpenAIAPIKey:       os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:        getenv("OPENAI_MODEL", "gpt-4o"),
		BucketName:         os.Getenv("BUCKET_NAME"),
		BucketRegion:       os.Getenv("BUCKET_REGION"),
		KnowledgeDir:       getenv("KNOWLEDGE_DIR", "./knowledge"),
		DBPath:             getenv("DB_PATH", "./quiz.db"),
		RedisAddr:          os.Getenv("REDIS_ADDR"),
		RedisChannelPrefix: getenv("REDIS_CHANNEL_PREFIX", "quiz-progress"),
		JWTSecret:          os.Getenv("JWT_SECRET"),
		SessionSecret:      os.Getenv("SESSION_SECRET"),
		Port:               getenv("PORT", "8180"),
		LogMode:            getenv("LOG_MODE", "dev"),
		LLMLogDir:          os.Getenv("LLM_LOG_DIR"),
		ProgressRetention:  time.Duration(retentionHours) * time.Hour,
	}, nil
}

func getenv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
