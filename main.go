package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/printhouse-api/config"
	"github.com/kendall-kelly/printhouse-api/controllers"
	"github.com/kendall-kelly/printhouse-api/logger"
	"github.com/kendall-kelly/printhouse-api/middleware"
	"github.com/kendall-kelly/printhouse-api/services"
)

const tenderSweepInterval = time.Minute

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appLog, err := logger.New(cfg.GoEnv, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer appLog.Sync()
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	appLog.Info("Starting Printhouse API server", "env", cfg.GoEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect to database
	if err := config.ConnectDatabase(cfg.DatabaseURL); err != nil {
		appLog.Fatal("Failed to connect to database", "error", err)
	}

	// Auto-migrate database models
	db := config.GetDB()
	if err := config.AutoMigrate(db); err != nil {
		appLog.Fatal("Failed to migrate database", "error", err)
	}
	appLog.Info("Database migration completed successfully")

	core := services.InitCore(db, appLog, coreOptions(ctx, cfg, appLog))
	go sweepExpiredTenders(ctx, core, appLog, tenderSweepInterval)

	router := newRouter(cfg, middleware.EnsureValidToken(cfg, appLog))

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		appLog.Info("Server is running", "addr", "http://localhost"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Fatal("Failed to start server", "error", err)
		}
	}()

	<-ctx.Done()
	appLog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Error("Graceful shutdown failed", "error", err)
	}
}

// coreOptions wires the optional backends. Redis and S3 are skipped when not configured.
func coreOptions(ctx context.Context, cfg *config.Config, appLog *logger.Logger) services.CoreOptions {
	opts := services.CoreOptions{
		CatalogCacheTTL: cfg.CatalogCacheTTL,
		UserInfo:        services.NewAuth0Service(cfg),
	}

	if cfg.RedisEnabled() {
		rdb, err := services.NewRedisClient(ctx, cfg.RedisAddr)
		if err != nil {
			appLog.Warn("Redis unavailable, using log notifications and in-memory catalog cache", "error", err)
		} else {
			sink, err := services.NewRedisNotificationSink(rdb, cfg.RedisNotifyChannel, appLog)
			if err != nil {
				appLog.Fatal("Failed to build notification sink", "error", err)
			}
			opts.Sink = sink
			opts.CatalogCache = services.NewRedisCatalogCache(rdb, "printhouse:catalog:")
		}
	}

	if cfg.MediaStoreEnabled() {
		s3, err := services.InitS3Service(ctx, cfg)
		if err != nil {
			appLog.Warn("Media store unavailable, artwork uploads disabled", "error", err)
		} else {
			opts.Artwork = services.NewS3ArtworkStore(s3)
		}
	} else {
		appLog.Info("No media store configured, artwork uploads disabled")
	}
	return opts
}

// newRouter builds the engine; authenticate validates bearer tokens
func newRouter(cfg *config.Config, authenticate gin.HandlerFunc) *gin.Engine {
	router := gin.Default()
	router.Use(cors.New(corsConfig(cfg)))

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		// Health check endpoint
		v1.GET("/health", healthCheck)

		// Database status endpoint
		v1.GET("/database/status", databaseStatus)
	}
	controllers.RegisterRoutes(v1, authenticate)
	return router
}

func corsConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		c.AllowAllOrigins = true
	} else {
		c.AllowOrigins = cfg.CORSAllowedOrigins
	}
	return c
}

// sweepExpiredTenders closes tenders past their deadline until ctx is done
func sweepExpiredTenders(ctx context.Context, core *services.Core, appLog *logger.Logger, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := core.Tenders.CloseExpired(ctx, services.SystemActor)
			if err != nil {
				appLog.Error("closing expired tenders failed", "error", err)
				continue
			}
			if n > 0 {
				appLog.Info("closed expired tenders", "count", n)
			}
		}
	}
}

// healthCheck handles the health check endpoint
func healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Printhouse API is running",
	})
}

// databaseStatus checks database connectivity and returns table information
func databaseStatus(c *gin.Context) {
	db := config.GetDB()
	if db == nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Database is not initialized",
			},
		})
		return
	}

	// Get the underlying SQL database to check connection
	sqlDB, err := db.DB()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to get database instance",
			},
		})
		return
	}

	// Ping the database to verify connection
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_CONNECTION_ERROR",
				"message": "Database connection failed",
			},
		})
		return
	}

	// Get list of tables
	query := "SELECT tablename FROM pg_tables WHERE schemaname = 'public'"
	if db.Dialector.Name() == "sqlite" {
		query = "SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'"
	}
	var tables []string
	if err := db.WithContext(c.Request.Context()).Raw(query).Scan(&tables).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_QUERY_ERROR",
				"message": "Failed to query tables",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Database connected",
		"tables":  tables,
	})
}
