package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	integrationdomain "github.com/costplane/costplane/internal/integration/domain"
)

func (s *Server) CreateIntegration(c *gin.Context) {
	var req integrationdomain.CreateIntegrationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.integrationSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListIntegrations(c *gin.Context) {
	resp, err := s.integrationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// PollIntegration triggers an immediate poll pass for one integration.
func (s *Server) PollIntegration(c *gin.Context) {
	ctx := c.Request.Context()

	integ, err := s.integrationSvc.Get(ctx, strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.pollWorker.PollOne(ctx, integ); err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "polled", "integration_id": integ.ID.String()})
}
