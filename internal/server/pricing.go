package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	pricingdomain "github.com/prepware/creditengine/internal/pricing/domain"
)

type setPriceRequest struct {
	FeatureKey  string `json:"feature_key"`
	CostPerUnit int64  `json:"cost_per_unit"`
	Active      *bool  `json:"active,omitempty"`
	Description string `json:"description"`
}

type setModelPriceRequest struct {
	ModelName             string  `json:"model_name"`
	InputPricePerMillion  float64 `json:"input_price_per_million"`
	OutputPricePerMillion float64 `json:"output_price_per_million"`
	Active                *bool   `json:"active,omitempty"`
}

func (s *Server) ListPrices(c *gin.Context) {
	resp, err := s.pricingSvc.ListPrices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetPrice(c *gin.Context) {
	var req setPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.SetPrice(c.Request.Context(), pricingdomain.SetPriceRequest{
		FeatureKey:  strings.TrimSpace(req.FeatureKey),
		CostPerUnit: req.CostPerUnit,
		Active:      req.Active,
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListModelPrices(c *gin.Context) {
	resp, err := s.pricingSvc.ListModelPrices(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetModelPrice(c *gin.Context) {
	var req setModelPriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.pricingSvc.SetModelPrice(c.Request.Context(), pricingdomain.SetModelPriceRequest{
		ModelName:             strings.TrimSpace(req.ModelName),
		InputPricePerMillion:  req.InputPricePerMillion,
		OutputPricePerMillion: req.OutputPricePerMillion,
		Active:                req.Active,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
