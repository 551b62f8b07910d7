package routes

import (
	"github.com/gin-gonic/gin"

	config "github.com/phillip/labapp-server-go/config"
	controllers "github.com/phillip/labapp-server-go/controllers"
	middleware "github.com/phillip/labapp-server-go/middleware"
	services "github.com/phillip/labapp-server-go/services"
	utils "github.com/phillip/labapp-server-go/utils"
)

// Deps are the services the handlers are built from.
type Deps struct {
	Events   *services.EventService
	Resolver *services.EventResolver
	Voting   *services.VotingEngine
	Results  *services.ResultsManager
	Presence *services.PresenceReconciler
	Images   utils.ImageStore
}

func SetupRoutes(r *gin.Engine, cfg *config.Config, d Deps) {
	// public
	r.GET("/health", controllers.Health())
	r.POST("/auth/token", controllers.IssueAdminToken(cfg))

	admin := middleware.AdminRequired(cfg)

	voting := r.Group("/voting")
	voting.Use(middleware.APIKey(cfg))
	{
		voting.POST("/create", admin, controllers.CreateVotingEvent(d.Events, d.Images))
		voting.GET("/current", controllers.CurrentVotingEvent(d.Resolver))
		voting.POST("/submit", controllers.SubmitBallot(d.Voting))
		voting.POST("/release", admin, controllers.ReleaseResults(d.Results))
		voting.GET("/results/current", admin, controllers.CurrentResults(d.Results))
		voting.GET("/results/final", controllers.FinalResults(d.Results))
	}

	location := r.Group("/location")
	if cfg.GateLocation {
		location.Use(middleware.APIKey(cfg))
	}
	{
		location.POST("/enterExit", controllers.EnterExit(d.Presence))
		location.GET("/shared", controllers.SharedUsers(d.Presence))
		location.POST("/tim", controllers.UpdateTracker(d.Presence))
		location.GET("/tim", controllers.GetTracker(d.Presence))
		location.POST("/reset", controllers.ResetPresence(d.Presence))
	}
}
