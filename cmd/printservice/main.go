package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"

	"github.com/orrn/labelgate/internal/core"
	"github.com/orrn/labelgate/internal/logging"
	"github.com/orrn/labelgate/internal/printservice"
)

func main() {
	viper.SetEnvPrefix("PRINTSERVICE")
	viper.AutomaticEnv()
	viper.SetDefault("ADDRESS", "127.0.0.1:9001")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "text")
	viper.SetDefault("LOG_FILE", "")
	viper.SetDefault("DOCUMENT_NAME", core.DefaultDocumentName)
	viper.SetDefault("WORKERS", 1)
	viper.SetDefault("QUEUE_SIZE", 32)
	viper.SetDefault("CHUNK_SIZE", core.DefaultChunkPolicy.ChunkSize)
	viper.SetDefault("CHUNK_DELAY", core.DefaultChunkPolicy.ChunkDelay)
	viper.SetDefault("CHUNK_BACK_TO_BACK", core.DefaultChunkPolicy.BackToBackChunks)
	viper.SetDefault("SETTLE_DELAY", core.DefaultChunkPolicy.SettleDelay)

	if err := logging.Init(logging.Config{
		Level:      viper.GetString("LOG_LEVEL"),
		Format:     viper.GetString("LOG_FORMAT"),
		File:       viper.GetString("LOG_FILE"),
		MaxSizeMB:  20,
		MaxBackups: 3,
		MaxAgeDays: 14,
	}); err != nil {
		panic(err)
	}
	log := logging.WithComponent("printservice")

	spooler := core.NewSystemSpooler()
	if err := spooler.Available(); err != nil {
		log.Warn().Err(err).Msg("spooler not available, /print and /printers will fail")
	}

	pool := core.NewBackgroundPool(core.PoolConfig{
		WorkerCount: viper.GetInt("WORKERS"),
		QueueSize:   viper.GetInt("QUEUE_SIZE"),
	})
	pool.Start()

	gin.SetMode(gin.ReleaseMode)
	writer := core.NewChunkedWriter(core.ChunkPolicy{
		ChunkSize:        viper.GetInt("CHUNK_SIZE"),
		ChunkDelay:       viper.GetDuration("CHUNK_DELAY"),
		BackToBackChunks: viper.GetInt("CHUNK_BACK_TO_BACK"),
		SettleDelay:      viper.GetDuration("SETTLE_DELAY"),
	})
	policy := writer.Policy()
	log.Info().Int("chunk_size", policy.ChunkSize).Dur("chunk_delay", policy.ChunkDelay).
		Int("back_to_back", policy.BackToBackChunks).Dur("settle_delay", policy.SettleDelay).Msg("spooler chunking policy")

	svc := printservice.New(spooler, pool,
		printservice.WithDocumentName(viper.GetString("DOCUMENT_NAME")),
		printservice.WithChunkedWriter(writer),
	)
	srv := &http.Server{
		Addr:              viper.GetString("ADDRESS"),
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", printservice.Version).Msg("print service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	pool.Stop()
	log.Info().Msg("print service stopped")
}
