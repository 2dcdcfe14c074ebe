// Package api assembles the labelgate HTTP surface.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/orrn/labelgate/internal/api/handlers"
	"github.com/orrn/labelgate/internal/api/middleware"
)

type Deps struct {
	Auth       *middleware.AuthMiddleware
	Print      *handlers.PrintHandler
	Dispatches *handlers.DispatchHandler
	Audit      *handlers.AuditHandler
}

func New(deps Deps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID(), middleware.AccessLog(), middleware.Recovery())

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Error: "not_found", Message: "endpoint not found"})
	})

	r.GET("/healthz", handlers.Healthz)

	auth := r.Group("/api/auth")
	{
		auth.POST("/login", deps.Auth.LoginHandler)
		auth.POST("/logout", deps.Auth.LogoutHandler)
		auth.GET("/status", deps.Auth.StatusHandler)
	}

	p := r.Group("/api/print", deps.Auth.RequireAuth())
	{
		p.POST("/tspl", deps.Print.PrintTSPL)
		p.POST("/test", deps.Print.PrintTest)
		p.POST("/render", deps.Print.RenderLabel)
		p.GET("/portas-com", deps.Print.ListSerialPorts)
		p.GET("/impressoras-windows", deps.Print.ListSpoolerPrinters)
		p.GET("/usb", deps.Print.ListUSBPrinters)
		p.GET("/service-status", deps.Print.ServiceStatus)
	}

	d := r.Group("/api/dispatches", deps.Auth.RequireAuth())
	{
		d.GET("", deps.Dispatches.ListDispatches)
		d.GET("/stats", deps.Dispatches.Stats)
		d.GET("/:id", deps.Dispatches.GetDispatch)
	}

	r.GET("/api/audit", deps.Auth.RequireAuth(), deps.Audit.ListAuditLogs)

	return r
}
