package config

import (
	"errors"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type QuizConf struct {
	NextRoundDelay     time.Duration `env:"NEXT_ROUND_DELAY" envDefault:"6s"`
	RoundsPerMatch     int           `env:"ROUNDS_PER_MATCH" envDefault:"7"`
	LeaderboardSize    int           `env:"LEADERBOARD_SIZE" envDefault:"10"`
	WebsocketReadLimit int64         `env:"WEBSOCKET_READ_LIMIT" envDefault:"512"`
	SubmitRateWindow   time.Duration `env:"SUBMIT_RATE_WINDOW" envDefault:"10s"`
	SubmitRateLimit    int           `env:"SUBMIT_RATE_LIMIT" envDefault:"20"`
}

type Config struct {
	Addr        string   `env:"ADDR" envDefault:":8080"`
	DatabaseURL string   `env:"DATABASE_URL,notEmpty"`
	Debug       bool     `env:"DEBUG"`
	Quiz        QuizConf `envPrefix:"QUIZ_"`
}

// LoadConfig reads an optional dotenv file then parses the environment.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}
	return env.ParseAs[Config]()
}
