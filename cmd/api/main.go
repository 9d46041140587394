package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ahwlsqja/shadow-vote/docs"
	"github.com/ahwlsqja/shadow-vote/internal/bootstrap"
	"github.com/ahwlsqja/shadow-vote/internal/common/handler"
	"github.com/ahwlsqja/shadow-vote/internal/common/middleware"
	"github.com/ahwlsqja/shadow-vote/internal/config"
	"github.com/ahwlsqja/shadow-vote/internal/decryption"
	"github.com/ahwlsqja/shadow-vote/internal/instance"
	"github.com/ahwlsqja/shadow-vote/internal/questionid"
	"github.com/ahwlsqja/shadow-vote/internal/voting"
	"github.com/ahwlsqja/shadow-vote/pkg/fhevm"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title Shadow Vote Gateway API
// @version 1.0
// @description Encrypted voting gateway: confidential ballots, decryption authorizations and tally publication

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /

func main() {
	// 1) Logger
	logger, err := bootstrap.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// 2) Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	logger.Info("starting server",
		zap.String("environment", cfg.Server.Environment),
		zap.String("addr", cfg.Server.Addr()),
		zap.String("storage", cfg.Storage.Backend),
	)

	// 3) Storage (fail-fast)
	connectCtx, cancelConnect := context.WithTimeout(context.Background(), 5*time.Second)
	stores, err := bootstrap.OpenStorage(connectCtx, cfg, logger)
	cancelConnect()
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err))
	}
	defer stores.Close()

	// 4) Chain connection and signer
	chain, err := ethclient.Dial(cfg.Chain.RPCURL)
	if err != nil {
		logger.Fatal("failed to dial chain", zap.String("rpc", cfg.Chain.RPCURL), zap.Error(err))
	}
	defer chain.Close()

	txSigner, err := bootstrap.NewSigner(cfg, logger)
	if err != nil {
		logger.Fatal("failed to load signer", zap.Error(err))
	}

	// 5) fhevm instance lifecycle
	lifecycle := fhevm.NewLifecycle(
		bootstrap.NewFactory(cfg, stores.Storage, logger),
		bootstrap.LifecycleParams(cfg),
		logger,
	)
	defer lifecycle.Close()

	watchCtx, stopWatch := context.WithCancel(context.Background())
	defer stopWatch()
	watcher := instance.NewWatcher(chain, lifecycle, bootstrap.LifecycleParams(cfg), cfg.Chain.PollingInterval, logger)
	go watcher.Run(watchCtx)

	// 6) Router
	router := setupRouter(cfg, logger, stores, chain, txSigner, lifecycle)

	// 7) HTTP server
	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("failed to start server", zap.Error(err))
		}
	}()

	logger.Info("server started",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("signer", txSigner.Address().Hex()),
		zap.String("swagger", fmt.Sprintf("http://localhost:%d/swagger/index.html", cfg.Server.Port)),
	)

	// 8) Wait for a shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}

func setupRouter(
	cfg *config.Config,
	logger *zap.Logger,
	stores *bootstrap.Stores,
	chain *ethclient.Client,
	txSigner voting.TxSigner,
	lifecycle *fhevm.Lifecycle,
) *gin.Engine {
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(logger, "/health", "/ready"))

	// Swagger
	docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", cfg.Server.Port)
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health endpoints
	handler.NewHealthHandler(stores.DB, stores.Redis).RegisterRoutes(router)

	// ============================================================================
	// Dependencies Setup
	// ============================================================================

	authorizer := bootstrap.NewAuthorizer(cfg, stores.Storage, logger)

	aliases := questionid.New(stores.Storage, logger)
	initCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	aliases.Init(initCtx)
	cancel()

	// ============================================================================
	// Service & Handler Setup
	// ============================================================================

	instanceHandler := instance.NewHandler(lifecycle, logger)

	decryptionService := decryption.NewService(authorizer, lifecycle, txSigner, cfg.FHEVM.WaitTimeout, logger)
	decryptionHandler := decryption.NewHandler(decryptionService, logger)

	var votingHandler *voting.Handler
	if common.IsHexAddress(cfg.Chain.VotingContractAddress) {
		client := voting.NewClient(chain, voting.Config{
			ContractAddress: common.HexToAddress(cfg.Chain.VotingContractAddress),
			ChainID:         cfg.Chain.ChainID,
			TxTimeout:       cfg.Chain.TxTimeout,
			InstanceTimeout: cfg.FHEVM.WaitTimeout,
		}, txSigner, lifecycle, authorizer, logger)
		votingHandler = voting.NewHandler(client, aliases, logger)
	} else {
		logger.Warn("VOTING_CONTRACT_ADDRESS not set, question routes disabled")
	}

	// ============================================================================
	// Route Registration
	// ============================================================================

	v1 := router.Group("/api/v1")
	{
		instanceHandler.RegisterRoutes(v1)
		decryptionHandler.RegisterRoutes(v1)
		if votingHandler != nil {
			votingHandler.RegisterRoutes(v1)
		}
	}

	return router
}
