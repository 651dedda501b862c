package app

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mkendall/whosaidit/internal/handlers"
	"github.com/mkendall/whosaidit/internal/logger"
	"github.com/mkendall/whosaidit/internal/orchestrator"
	"github.com/mkendall/whosaidit/internal/repository"
	"github.com/mkendall/whosaidit/internal/services"
	"github.com/mkendall/whosaidit/internal/websocket"
)

// App holds all application dependencies
type App struct {
	log      logger.Logger
	handlers *handlers.Handlers
	repo     *repository.Repository
	referees *orchestrator.Manager
}

// New creates and initializes a new application instance
func New(log logger.Logger, dbPath string, opts services.Options) (*App, error) {
	repo, err := repository.New(dbPath)
	if err != nil {
		return nil, err
	}

	// Initialize services
	roomService := services.NewRoomService(log, repo, opts)
	categoryService := services.NewCategoryService(log, repo)
	boardService := services.NewBoardService(log, repo, opts)
	playerService := services.NewPlayerService(log, repo, categoryService, boardService, opts)
	roundService := services.NewRoundService(log, repo, opts)

	// Initialize WebSocket hub
	hub := websocket.New(log, boardService)
	hub.Start()
	playerService.SetBroadcaster(hub)
	roundService.SetBroadcaster(hub)

	// One referee task per active room serializes autonomous transitions
	referees := orchestrator.NewManager(log, boardService, roundService, roomService, repo, time.Second)
	roundService.SetWaker(referees)

	h := handlers.New(roomService, playerService, roundService, boardService, hub, log)

	return &App{
		log:      log,
		handlers: h,
		repo:     repo,
		referees: referees,
	}, nil
}

// Router returns the configured HTTP router
func (a *App) Router() chi.Router {
	return a.handlers.Router()
}

// Close performs graceful shutdown of app resources
func (a *App) Close() {
	if a.referees != nil {
		a.referees.Shutdown()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// Run starts the HTTP server
func (a *App) Run(addr string) error {
	a.log.Info("Server starting", "addr", addr)
	return http.ListenAndServe(addr, a.Router())
}
