package main

import (
	"context"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"meetchain-backend/attendance"
	"meetchain-backend/config"
	"meetchain-backend/contracts"
	"meetchain-backend/fhe"
	"meetchain-backend/handlers"
	"meetchain-backend/indexer"
	"meetchain-backend/ipfs"
	"meetchain-backend/wallet"
)

func connectToEthereum(rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}

	log.Println("Successfully connected to Ethereum node!")
	return client, nil
}

// newAuthorizationStore picks the persistent store when a database is
// configured, the in-process store otherwise.
func newAuthorizationStore(cfg *config.Config) (fhe.Storage, *pgxpool.Pool, error) {
	if cfg.DatabaseURL == "" {
		log.Println("Using in-memory authorization store")
		return fhe.NewInMemoryStorage(), nil, nil
	}

	pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
	if err != nil {
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		return nil, nil, err
	}

	store := fhe.NewPostgresStorage(pool)
	if err := store.EnsureSchema(context.Background()); err != nil {
		return nil, nil, err
	}

	log.Println("Using Postgres authorization store")
	return store, pool, nil
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using default environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v\n", err)
	}

	ethClient, err := connectToEthereum(cfg.RPCURL)
	if err != nil {
		log.Fatalf("Unable to connect to Ethereum node: %v\n", err)
	}
	defer ethClient.Close()

	var signer wallet.Signer
	if cfg.PrivateKey != "" {
		pkSigner, err := wallet.NewPrivateKeySigner(cfg.PrivateKey, big.NewInt(cfg.ChainID))
		if err != nil {
			log.Fatalf("Unable to load signing key: %v\n", err)
		}
		signer = pkSigner
		log.Printf("Signing as %s", pkSigner.Address().Hex())
	} else {
		log.Println("Warning: no PRIVATE_KEY configured, running read-only")
	}

	ledger, err := contracts.NewEventManager(ethClient, signer, cfg.EventManagerAddress)
	if err != nil {
		log.Fatalf("Unable to set up EventManager contract: %v\n", err)
	}

	store, pool, err := newAuthorizationStore(cfg)
	if err != nil {
		log.Fatalf("Unable to set up authorization store: %v\n", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	coprocessor := fhe.NewRelayerCoprocessor(cfg.RelayerURL, cfg.ChainID, nil)
	metadata := ipfs.NewClient(cfg.IPFSGateway, nil)
	scanner := indexer.NewScanner(ledger, metadata)
	manager := attendance.NewManager(ledger, scanner, coprocessor, signer, store)

	// Create handlers
	eventHandler := handlers.NewEventHandler(scanner, ledger)
	attendanceHandler := handlers.NewAttendanceHandler(manager)
	badgeHandler := handlers.NewBadgeHandler(scanner, manager)

	// Setup Gin
	router := gin.Default()

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	// API routes
	api := router.Group("/api/v1")
	{
		// Event routes
		api.GET("/events", eventHandler.GetEvents)
		api.GET("/events/:id", eventHandler.GetEvent)
		api.POST("/events", eventHandler.CreateEvent)

		// Attendance routes
		api.POST("/events/:id/signin", attendanceHandler.SignIn)
		api.POST("/events/:id/decrypt", attendanceHandler.DecryptCount)

		// Badge routes
		api.GET("/badges", badgeHandler.GetBadges)
		api.POST("/badges/:id/claim", badgeHandler.ClaimBadge)
	}

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now().Unix(),
		})
	})

	log.Printf("Server starting on port %s\n", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v\n", err)
	}
}
