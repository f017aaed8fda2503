package instance

import (
	"agentboxBackend/auth"

	"github.com/gin-gonic/gin"
)

func RegisterRoutes(route *gin.Engine, handler Handler, authManager auth.AuthManager) {
	// Trust on these routes is established by a wallet signature or by
	// knowledge of the single-use callback token, not by a bearer credential.
	public := route.Group("/instances")
	{
		public.POST("/auth", handler.Login)
		public.POST("/callback/step", handler.ReportStep)
		public.POST("/callback", handler.Callback)
		public.GET("/config", handler.BootConfig)
	}

	protected := route.Group("/instances", authManager.AuthenticatorMiddleware())
	{
		protected.POST("", handler.Create)
		protected.GET("", handler.GetAll)
		protected.GET("/expiring", handler.GetExpiring)
		protected.POST("/sync", handler.Sync)
		protected.GET("/:id", handler.GetById)
		protected.PATCH("/:id", handler.Rename)
		protected.PATCH("/:id/agent", handler.UpdateAgent)
		protected.DELETE("/:id", handler.Delete)
		protected.POST("/:id/mint", handler.RetryMint)
		protected.POST("/:id/restart", handler.Restart)
		protected.POST("/:id/extend", handler.Extend)
		protected.POST("/:id/withdraw", handler.Withdraw)
		protected.GET("/:id/access", handler.GetAccess)
		protected.GET("/:id/health", handler.GetHealth)
		protected.GET("/:id/events", handler.GetEvents)
	}
}
