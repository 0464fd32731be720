package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"loadboard/api"
)

func main() {
	args := ParseArgs()
	if !args.Validate() {
		panic("missing arguments")
	}
	server, err := api.NewServer(args.ServerConfig)
	if err != nil {
		panic(err)
	}
	defer server.Close()
	server.Start()

	router := gin.Default()
	server.RegisterHandlers(router)
	httpServer := &http.Server{
		Addr:    args.ServerURL,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server stopped", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("fail to shutdown http server", slog.Any("error", err))
	}
}
