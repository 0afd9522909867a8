// Package main runs the live classroom HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/classpulse/backend/config"
	"github.com/classpulse/backend/internal/attendance"
	"github.com/classpulse/backend/internal/auth"
	"github.com/classpulse/backend/internal/chat"
	"github.com/classpulse/backend/internal/middleware"
	"github.com/classpulse/backend/internal/notifications"
	"github.com/classpulse/backend/internal/presence"
	"github.com/classpulse/backend/internal/realtime"
	"github.com/classpulse/backend/internal/session"
	"github.com/classpulse/backend/pkg/database"
	"github.com/classpulse/backend/pkg/queue"
	"github.com/classpulse/backend/pkg/redis"
	"github.com/classpulse/backend/pkg/response"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	tracker := presence.NewTracker()
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(tracker, logger, redisPubSub, redisPubSub)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Background jobs (report archiving, notification email fallback)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Notifications
	notifRepo := notifications.NewRepository(pool)
	dispatcher := notifications.NewDispatcher(notifRepo, hub, jobQueue, logger)
	notifHandler := notifications.NewHandler(notifRepo)

	// Chat persistence
	chatRepo := chat.NewRepository(pool)

	// Attendance (join/leave log per session)
	attendanceRepo := attendance.NewRepository(pool)
	attendanceHandler := attendance.NewHandler(attendanceRepo)
	hub.SetSessionHandlers(
		func(sessionID, userID uuid.UUID) {
			_ = attendanceRepo.LogJoin(context.Background(), sessionID, userID)
		},
		func(sessionID, userID uuid.UUID, _ time.Time) {
			_ = attendanceRepo.LogLeave(context.Background(), sessionID, userID)
		},
	)

	// Sessions
	sessionRepo := session.NewRepository(pool)
	registry := session.NewRegistry(sessionRepo, logger)
	sessionHandler := session.NewHandler(registry, sessionRepo, hub, dispatcher, authRepo, chatRepo, jobQueue, logger)

	// Timer and quiz countdowns
	tickerCtx, tickerCancel := context.WithCancel(context.Background())
	defer tickerCancel()
	ticker := session.NewTicker(registry, hub, time.Duration(cfg.Ticker.IntervalSeconds)*time.Second, logger)
	go ticker.Run(tickerCtx)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), claims.Role, nil
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		// Users (admin only; for roster selection)
		api.GET("/users", middleware.RequireRole("admin"), authHandler.List)

		// Sessions
		api.POST("/sessions", sessionHandler.Create)
		api.GET("/sessions", sessionHandler.ListMine)
		api.GET("/sessions/:id", sessionHandler.Get)
		api.POST("/sessions/:id/join", sessionHandler.Join)
		api.POST("/sessions/:id/end", sessionHandler.End)
		api.GET("/sessions/:id/attendance", middleware.RequireRole("admin", "teacher"), attendanceHandler.ListBySession)

		// Hand raising
		api.POST("/sessions/:id/hand", sessionHandler.RaiseHand)
		api.DELETE("/sessions/:id/hand", sessionHandler.LowerHand)
		api.GET("/sessions/:id/hand", sessionHandler.HandPosition)
		api.POST("/sessions/:id/hands/clear", sessionHandler.ClearHands)

		// Polls
		api.POST("/sessions/:id/polls", sessionHandler.CreatePoll)
		api.POST("/sessions/:id/polls/:pollId/vote", sessionHandler.Vote)
		api.POST("/sessions/:id/polls/:pollId/end", sessionHandler.EndPoll)

		// Quizzes
		api.POST("/sessions/:id/quizzes", sessionHandler.CreateQuiz)
		api.POST("/sessions/:id/quizzes/:quizId/next", sessionHandler.NextQuestion)
		api.POST("/sessions/:id/quizzes/:quizId/answers", sessionHandler.SubmitAnswer)
		api.POST("/sessions/:id/quizzes/:quizId/end", sessionHandler.EndQuiz)

		// Class timer
		api.POST("/sessions/:id/timer", sessionHandler.SetTimer)
		api.POST("/sessions/:id/timer/toggle", sessionHandler.ToggleTimer)
		api.POST("/sessions/:id/timer/reset", sessionHandler.ResetTimer)
		api.DELETE("/sessions/:id/timer", sessionHandler.StopTimer)

		// Spotlight, rewards, breakout rooms
		api.POST("/sessions/:id/spotlight", sessionHandler.ToggleSpotlight)
		api.POST("/sessions/:id/rewards", sessionHandler.GrantReward)
		api.POST("/sessions/:id/breakout", sessionHandler.AssignBreakout)
		api.DELETE("/sessions/:id/breakout", sessionHandler.ClearBreakout)

		// Chat and reactions
		api.POST("/sessions/:id/chat", sessionHandler.PostChat)
		api.GET("/sessions/:id/chat", sessionHandler.ListChat)
		api.POST("/sessions/:id/reactions", sessionHandler.PostReaction)

		// Participant moderation
		api.DELETE("/sessions/:id/participants/:userId", sessionHandler.RemoveParticipant)
		api.POST("/sessions/:id/participants/:userId/mute", sessionHandler.ToggleMute)

		// Notifications
		api.GET("/notifications", notifHandler.List)
		api.GET("/notifications/unread-count", notifHandler.UnreadCount)
		api.PATCH("/notifications/:id/read", notifHandler.MarkRead)
		api.DELETE("/notifications/:id", notifHandler.Delete)
	}

	// WebSocket (token in query; no Authorization header required)
	router.GET("/ws", func(c *gin.Context) {
		realtime.ServeWs(hub, logger, jwtValidate, dispatcher)(c)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	tickerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	registry.Shutdown()
	tracker.Clear()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
