package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	mappingdomain "github.com/costplane/costplane/internal/mapping/domain"
	"github.com/costplane/costplane/internal/provider"
)

type columnMappingResponse struct {
	Provider     string    `json:"provider"`
	TargetField  string    `json:"target_field"`
	SourceColumn string    `json:"source_column"`
	Confidence   float64   `json:"confidence"`
	AutoMapped   bool      `json:"auto_mapped"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) ListMappings(c *gin.Context) {
	prov := queryProvider(c)

	mappings, err := s.mappingSvc.ListMappings(c.Request.Context(), prov)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp := make([]columnMappingResponse, 0, len(mappings))
	for _, m := range mappings {
		resp = append(resp, columnMappingResponse{
			Provider:     string(m.Provider),
			TargetField:  string(m.TargetField),
			SourceColumn: m.SourceColumn,
			Confidence:   m.Confidence,
			AutoMapped:   m.AutoMapped,
			UpdatedAt:    m.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ConfirmMapping pins a source column to a target field, overriding any
// automatic suggestion for that field.
func (s *Server) ConfirmMapping(c *gin.Context) {
	var req mappingdomain.ConfirmMappingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	mapping, err := s.mappingSvc.ConfirmMapping(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": columnMappingResponse{
		Provider:     string(mapping.Provider),
		TargetField:  string(mapping.TargetField),
		SourceColumn: mapping.SourceColumn,
		Confidence:   mapping.Confidence,
		AutoMapped:   mapping.AutoMapped,
		UpdatedAt:    mapping.UpdatedAt,
	}})
}

func (s *Server) ListMappingSuggestions(c *gin.Context) {
	prov := queryProvider(c)

	suggestions, err := s.mappingSvc.ListSuggestions(c.Request.Context(), prov)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": suggestions})
}

func (s *Server) ListDetectedColumns(c *gin.Context) {
	prov := queryProvider(c)

	columns, err := s.mappingSvc.ListDetectedColumns(c.Request.Context(), prov)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": columns})
}

func queryProvider(c *gin.Context) provider.Provider {
	raw := strings.ToLower(strings.TrimSpace(c.Query("provider")))
	if raw == "" {
		return provider.Generic
	}
	return provider.Provider(raw)
}
