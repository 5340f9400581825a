package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accountdomain "github.com/smallbiznis/merchline/internal/account/domain"
	campaigndomain "github.com/smallbiznis/merchline/internal/campaign/domain"
)

type createCampaignRequest struct {
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Quota     int64  `json:"quota"`
}

func (s *Server) CreateCampaign(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	companyID, err := parseOptionalSnowflakeID(req.CompanyID)
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company id"))
		return
	}
	if companyID == nil {
		if actor.CompanyID == nil {
			AbortWithError(c, newValidationError("company_id", "required", "company_id is required"))
			return
		}
		companyID = actor.CompanyID
	}

	resp, err := s.campaignSvc.CreateCampaign(c.Request.Context(), actor, campaigndomain.CreateCampaignRequest{
		CompanyID: *companyID,
		Name:      strings.TrimSpace(req.Name),
		Type:      strings.TrimSpace(req.Type),
		Quota:     req.Quota,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetCampaignQuota(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	campaignID, ok := pathID(c, "id")
	if !ok {
		return
	}

	campaign, err := s.campaignSvc.GetCampaign(c.Request.Context(), campaignID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !actor.IsAdmin() && !actor.BelongsTo(campaign.CompanyID) {
		AbortWithError(c, ErrNotFound)
		return
	}

	resp, err := s.campaignSvc.GetQuotaStatus(c.Request.Context(), campaignID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type setOrderLimitRequest struct {
	Limit int64 `json:"limit"`
}

func (s *Server) SetCampaignOrderLimit(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	campaignID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req setOrderLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	role := accountdomain.Role(strings.TrimSpace(c.Param("role")))
	result, err := s.campaignSvc.SetOrderLimit(c.Request.Context(), actor, campaignID, role, req.Limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(upsertStatus(result), gin.H{"result": result})
}

type createNotificationRuleRequest struct {
	Threshold     int64    `json:"threshold"`
	ThresholdType string   `json:"threshold_type"`
	Recipients    []string `json:"recipients"`
	Frequency     int      `json:"frequency"`
	FrequencyUnit string   `json:"frequency_unit"`
}

func (s *Server) CreateNotificationRule(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	campaignID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req createNotificationRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.campaignSvc.CreateNotificationRule(c.Request.Context(), actor, campaigndomain.CreateNotificationRuleRequest{
		CampaignID:    campaignID,
		Threshold:     req.Threshold,
		ThresholdType: campaigndomain.ThresholdType(strings.TrimSpace(req.ThresholdType)),
		Recipients:    req.Recipients,
		Frequency:     req.Frequency,
		FrequencyUnit: campaigndomain.FrequencyUnit(strings.TrimSpace(req.FrequencyUnit)),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}
