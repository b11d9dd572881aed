package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/PorticoEstate/matrikkel-sub000/internal/handlers"
	"github.com/PorticoEstate/matrikkel-sub000/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 30 * time.Second

// quietPaths are probed often enough that successful requests are not logged.
var quietPaths = []string{"/health", "/health/ready", "/metrics"}

// Router builds the ops API.
func (a *App) Router() *gin.Engine {
	if a.Config.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware in order: RequestID -> Logger -> Recovery -> Metrics -> CORS
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(a.Log, quietPaths...))
	router.Use(middleware.Recovery(a.Log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(a.Config.CORS.Origins))

	healthHandler := handlers.NewHealthHandler(a.DB, a.Config.Registry.URL, a.Config.Server.Env)
	router.GET("/health", healthHandler.Health)
	router.GET("/health/ready", healthHandler.Ready)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	importHandler := handlers.NewImportHandler(a.Imports, a.Hierarchy, a.Tracker)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/info", healthHandler.Info)

		imports := v1.Group("/imports")
		{
			imports.GET("", importHandler.List)
			imports.GET("/:entity", importHandler.Get)
			imports.POST("/:entity", importHandler.Start)
		}

		v1.POST("/properties/:id/organize", importHandler.Organize)
	}

	return router
}

// Serve runs the ops API until ctx is cancelled, then shuts the server down
// and waits for imports it started.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", a.Config.Server.Port),
		Handler:           a.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Log.Info("Server listening", map[string]interface{}{
			"port": a.Config.Server.Port,
			"addr": srv.Addr,
		})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.Log.Info("Shutting down server...", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.Log.Error("Server forced to shutdown", err, map[string]interface{}{
			"timeout": shutdownTimeout.String(),
		})
		return err
	}

	a.Log.Info("Waiting for running imports", nil)
	a.Imports.Wait()

	a.Log.Info("Server exited", nil)
	return nil
}
