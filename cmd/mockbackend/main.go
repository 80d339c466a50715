package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/wine-sommelier/internal/backend"
	"github.com/menta2k/wine-sommelier/internal/logger"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.WithError(err).Warn("Could not load .env file")
	}

	var port int
	var scenario string
	var delay time.Duration
	var logLevel string

	flag.IntVar(&port, "port", 5001, "listen port")
	flag.StringVar(&scenario, "scenario", string(backend.ScenarioWines), "recommendation answer: wines|empty|invalid|error")
	flag.DurationVar(&delay, "delay", 0, "delay before every analysis answer, e.g. 2s")
	flag.StringVar(&logLevel, "log-level", os.Getenv("LOG_LEVEL"), "log level: debug|info|warn|error")
	flag.Parse()

	logger.SetLevel(logLevel)

	switch backend.Scenario(scenario) {
	case backend.ScenarioWines, backend.ScenarioEmpty, backend.ScenarioInvalid, backend.ScenarioError:
	default:
		logger.Logger.Fatalf("unknown scenario %q", scenario)
	}

	gin.SetMode(gin.ReleaseMode)
	router := backend.NewRouter(backend.Options{
		Scenario: backend.Scenario(scenario),
		Delay:    delay,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"address":  server.Addr,
			"scenario": scenario,
			"delay":    delay.String(),
		}).Info("Starting mock analysis backend")

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}
