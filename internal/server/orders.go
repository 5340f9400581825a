package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	orderdomain "github.com/smallbiznis/merchline/internal/order/domain"
	orderquantitydomain "github.com/smallbiznis/merchline/internal/orderquantity/domain"
)

type orderLinesRequest struct {
	Lines []orderquantitydomain.Line `json:"lines"`
	Quota int64                      `json:"quota"`
}

func (s *Server) ValidateOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req orderLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.validatorSvc.ValidateLines(c.Request.Context(), orderquantitydomain.Scope{Actor: actor}, req.Lines)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitCampaignOrder(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	campaignID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req orderLinesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Quota < 0 {
		AbortWithError(c, newValidationError("quota", "invalid_quota", "quota must not be negative"))
		return
	}

	resp, err := s.orderSvc.Submit(c.Request.Context(), actor, orderdomain.SubmitRequest{
		CampaignID: campaignID,
		Lines:      req.Lines,
		Quota:      req.Quota,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
