package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"chatanything/app/server"
	"chatanything/config"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("error to load configuration: ", err)
	}

	s := server.NewServer(cfg)
	if err := s.Init(context.Background()); err != nil {
		s.Stop()
		log.Fatal("error to start application: ", err)
	}

	go func() {
		if err := s.Run(); err != nil {
			log.Fatal("error to run server: ", err)
		}
	}()

	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	<-sigch
	log.Println("Received shutdown signal, shutting down server...")
	s.Stop()
}

// mustLoadEnvVariables reads .env when present. The configuration may also
// come straight from the environment.
func mustLoadEnvVariables() {
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal("Error loading .env file: ", err)
	}
}
