package chat

import "github.com/gin-gonic/gin"

// RegisterRoutes registers the routes for the chat module
func RegisterRoutes(g *gin.RouterGroup, c *Controller) {
	group := g.Group("/chat")

	// Session management routes
	group.POST("/sessions", c.CreateSession)                 // Create a new session
	group.GET("/sessions", c.ListSessions)                   // List active sessions
	group.GET("/sessions/:uuid/history", c.GetHistory)       // Get a session's message history
	group.POST("/sessions/:uuid/message", c.PostMessage)     // Send a message to a session
	group.DELETE("/sessions/:uuid", c.DeleteSession)         // End a session, archiving its history
	group.GET("/sessions/:uuid/transcript", c.GetTranscript) // Get the session's latest transcript

	// Transcript routes
	group.GET("/transcripts", c.ListTranscripts)
	group.GET("/transcripts/stats", c.GetStats)

	// Admin routes
	group.POST("/admin/cleanup", c.CleanupSessions)
	group.DELETE("/admin/transcripts", c.PurgeTranscripts)
}
