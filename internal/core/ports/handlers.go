package ports

import "github.com/gin-gonic/gin"

type HTTPHandler interface {
	ListSessions(c *gin.Context)
	GetSession(c *gin.Context)
	MintToken(c *gin.Context)
}
