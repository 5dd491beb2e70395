// Package httpapi exposes resolution, confirmation and reporting over HTTP
// for a chat bot front end.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"nutrilog"
	"nutrilog/confirm"
	"nutrilog/export"
	"nutrilog/report"
	"nutrilog/resolve"
)

const maxImageBytes = 10 << 20

type Resolver interface {
	ResolveText(ctx context.Context, text string) (resolve.Resolution, error)
	ResolvePhoto(ctx context.Context, image []byte) (resolve.Resolution, error)
}

// Store is the part of the repository the day and preset routes touch
// directly.
type Store interface {
	Entries(ctx context.Context, day time.Time) ([]nutrilog.LoggedFoodEntry, error)
	DeleteMostRecentEntry(ctx context.Context, day time.Time) (nutrilog.LoggedFoodEntry, bool, error)
	SavePreset(ctx context.Context, preset nutrilog.MealPreset) (nutrilog.MealPreset, error)
	GetPreset(ctx context.Context, name string) (nutrilog.MealPreset, bool, error)
	ListPresets(ctx context.Context) ([]nutrilog.MealPreset, error)
	DeletePreset(ctx context.Context, name string) (bool, error)
}

type Server struct {
	resolver Resolver
	confirm  *confirm.Manager
	reports  *report.Engine
	store    Store
	exports  export.Sink
	loc      *time.Location
	now      func() time.Time
}

type Options struct {
	Location *time.Location
	Now      func() time.Time
	// Exports, when set, enables the stored export routes.
	Exports export.Sink
}

func NewServer(resolver Resolver, manager *confirm.Manager, reports *report.Engine, store Store, opts Options) *Server {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		resolver: resolver,
		confirm:  manager,
		reports:  reports,
		store:    store,
		exports:  opts.Exports,
		loc:      opts.Location,
		now:      opts.Now,
	}
}

// Router wires every route onto a fresh gin engine.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())
	r.MaxMultipartMemory = maxImageBytes

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	users := r.Group("/users/:user")
	users.POST("/meals/text", s.mealText)
	users.POST("/meals/photo", s.mealPhoto)
	users.GET("/pending", s.pending)
	users.PUT("/pending/:index/quantity", s.adjustQuantity)
	users.POST("/confirm", s.confirmPending)
	users.POST("/cancel", s.cancelPending)
	users.POST("/presets/:name", s.stagePreset)

	presets := r.Group("/presets")
	presets.GET("", s.listPresets)
	presets.POST("", s.savePreset)
	presets.GET("/:name", s.getPreset)
	presets.DELETE("/:name", s.deletePreset)

	days := r.Group("/days/:date")
	days.GET("/summary", s.daySummary)
	days.GET("/balance", s.dayBalance)
	days.GET("/entries", s.dayEntries)
	days.DELETE("/entries/last", s.undoLast)

	r.GET("/weeks/:end/average", s.weekAverage)
	r.GET("/export.csv", s.exportCSV)
	if s.exports != nil {
		r.POST("/exports", s.saveExport)
		r.GET("/exports/:name", s.loadExport)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header("X-Request-ID", id)

		start := time.Now()
		c.Next()

		slog.Info("HTTP: request",
			"request_id", id,
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
