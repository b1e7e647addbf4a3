// Утилита выдачи токенов для локальной разработки и ручных проверок API.
// Пользователь должен существовать в хранилище; здесь токен только подписывается.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/supportdesk/internal/auth"
	"github.com/supportdesk/internal/config"
	"github.com/supportdesk/internal/logger"
)

func main() {
	logger.SetPrefix("auth")
	userID := flag.String("user", "", "user id to put into the token")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *userID == "" {
		fmt.Fprintln(os.Stderr, "usage: auth -user <id> [-ttl 24h]")
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	if cfg.IsProduction() {
		logger.Error("refusing to issue tokens in production")
		os.Exit(1)
	}

	// Проверка токена и отзыв здесь не нужны: хранилища не подключаются.
	gate := auth.NewGate(cfg.JWTSecret, nil, nil)
	tok, err := gate.Issue(*userID, *ttl)
	if err != nil {
		logger.Errorf("issue token: %v", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
