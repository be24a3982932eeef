package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meowchat/meowchat/webclient/handlers"
	"github.com/meowchat/meowchat/webclient/internal/apiclient"
	"github.com/meowchat/meowchat/webclient/internal/app"
	"github.com/meowchat/meowchat/webclient/internal/config"
	"github.com/meowchat/meowchat/webclient/internal/session"
	"github.com/meowchat/meowchat/webclient/pkg/logger"
	"github.com/meowchat/meowchat/webclient/pkg/metrics"
	"github.com/meowchat/meowchat/webclient/pkg/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var startTime = time.Now()

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	logger.Debugf("startup: LOG_LEVEL=%s", logger.LevelString())

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: backend=%q mode=%s store=%s redis=%v dev_backend=%v",
		cfg.Backend.BaseURL, cfg.Auth.Mode, cfg.Store.Driver, cfg.Redis.Host != "", cfg.DevBackend.Enabled)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A headless process has no page to navigate; record the request instead.
	nav := apiclient.NavigatorFunc(func(path string) {
		logger.Warnf("session ended, login required at %s", path)
	})
	rt, err := app.New(ctx, cfg, nav)
	if err != nil {
		logger.Fatalf("failed to build runtime: %v", err)
	}
	defer rt.Close()
	rt.Start()

	// resolve the persisted session before serving gated routes
	go func() {
		s := rt.Sessions.VerifySession(ctx)
		logger.Infof("startup verify: %s", s.Status())
	}()

	r := gin.New()

	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusOK)
			return
		}
		c.Next()
	})
	r.Use(gin.Logger(), gin.Recovery())

	if rl := middleware.RateLimit(cfg.RateLimit, rt.Redis); rl != nil {
		logger.Infof("rate limiter enabled (redis=%v)", cfg.RateLimit.UseRedis && rt.Redis != nil)
		r.Use(rl)
	}

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// ready once the session belief is settled and Redis answers when configured
	r.GET("/ready", func(c *gin.Context) {
		ready := true
		deps := map[string]bool{}

		st := rt.Sessions.Session().Status()
		deps["session"] = st == session.StatusAuthenticated || st == session.StatusUnauthenticated
		if !deps["session"] {
			ready = false
		}

		if rt.Redis != nil {
			pctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
			deps["redis"] = rt.Redis.Ping(pctx).Err() == nil
			cancel()
			if !deps["redis"] {
				ready = false
			}
		} else {
			deps["redis"] = true
		}

		body := gin.H{"deps": deps, "uptime": time.Since(startTime).String(), "session": st.String()}
		if !ready {
			body["status"] = "not_ready"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["status"] = "ready"
		c.JSON(http.StatusOK, body)
	})

	handlers.NewAuthHandler(rt.Sessions, cfg.Auth.LoginPath).Register(r)
	handlers.NewServersHandler(rt.Sessions, rt.Membership, cfg.Auth.LoginPath).Register(r)
	handlers.RegisterSwagger(r)

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("starting meowchat web client on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		logger.Errorf("shutdown: %v", err)
	}
}
