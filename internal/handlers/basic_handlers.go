package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthCheckHandler GET /health
func HealthCheckHandler(c *gin.Context) {
	c.String(http.StatusOK, "OK")
}
