package config_test

import (
	"testing"
	"time"

	"mathrush-backend/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/quiz")
	t.Setenv("DEBUG", "true")
	t.Setenv("QUIZ_ROUNDS_PER_MATCH", "5")

	cfg, err := config.LoadConfig("")
	if err != nil {
		t.Fatalf("%v", err)
	}

	if !cfg.Debug {
		t.Fatal("DEBUG=true should enable the debug flag")
	}
	if got, want := cfg.Addr, ":8080"; got != want {
		t.Fatalf("got addr %q, want default %q", got, want)
	}
	if got, want := cfg.Quiz.RoundsPerMatch, 5; got != want {
		t.Fatalf("got rounds per match %d, want %d", got, want)
	}
	if got, want := cfg.Quiz.NextRoundDelay, 6*time.Second; got != want {
		t.Fatalf("got next round delay %v, want default %v", got, want)
	}
}

func TestLoadConfigRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	if _, err := config.LoadConfig(""); err == nil {
		t.Fatal("an empty DATABASE_URL must fail config parsing")
	}
}
