package config

import (
	"os"
	"strconv"
)

type Config struct {
	Env          string
	HttpPort     string
	S3RootDir    string // filesystem root backing buckets/objects
	ChatURL      string // chat-style inference backend
	GenerateURL  string // completion-style inference backend
	Model        string // default inference model id
	RDSPortStart int    // first host port handed to provisioned instances
	RDSDataDir   string // fallback single-file databases live here
	DBPath       string // used when DBDriver=sqlite
	DBDriver     string // sqlite|postgres
	DBDsn        string // used when DBDriver=postgres (e.g., DATABASE_URL)
}

func Load() *Config {
	cfg := &Config{
		Env:          getEnv("APP_ENV", "dev"),
		HttpPort:     getEnv("HTTP_PORT", "8000"),
		S3RootDir:    getEnv("S3_ROOT_DIR", "data/s3"),
		ChatURL:      getEnv("OLLAMA_CHAT_URL", "http://localhost:11434/api/chat"),
		GenerateURL:  getEnv("OLLAMA_GENERATE_URL", "http://localhost:11434/api/generate"),
		Model:        getEnv("OLLAMA_MODEL", "gpt-oss:20b-cloud"),
		RDSPortStart: getEnvInt("RDS_PORT_START", 5433),
		RDSDataDir:   getEnv("RDS_DATA_DIR", "data/rds"),
		DBPath:       getEnv("DB_PATH", "data/stratus.db"),
		DBDriver:     getEnv("DB_DRIVER", "sqlite"),
		DBDsn:        getEnv("DATABASE_URL", getEnv("DB_DSN", "")),
	}
	return cfg
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
