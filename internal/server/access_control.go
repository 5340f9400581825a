package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	accesscontroldomain "github.com/smallbiznis/merchline/internal/accesscontrol/domain"
	pkgdb "github.com/smallbiznis/merchline/pkg/db"
)

type createAccessControlGroupRequest struct {
	CompanyID   string `json:"company_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) CreateAccessControlGroup(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	var req createAccessControlGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	companyID, err := parseOptionalSnowflakeID(req.CompanyID)
	if err != nil {
		AbortWithError(c, newValidationError("company_id", "invalid_company_id", "invalid company id"))
		return
	}

	resp, err := s.accessControlSvc.CreateGroup(c.Request.Context(), actor, accesscontroldomain.CreateGroupRequest{
		CompanyID:   companyID,
		Name:        strings.TrimSpace(req.Name),
		Description: strings.TrimSpace(req.Description),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) ListAccessControlGroups(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}

	resp, err := s.accessControlSvc.ListGroups(c.Request.Context(), actor)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		resp = []accesscontroldomain.Group{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetAccessControlGroup(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}

	resp, err := s.accessControlSvc.GetGroup(c.Request.Context(), actor, groupID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

type addMemberRequest struct {
	Kind string `json:"kind"`
	ID   string `json:"id"`
}

func (s *Server) AddAccessControlGroupMember(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req addMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	ref, ok := memberRef(req.Kind, req.ID)
	if !ok {
		AbortWithError(c, accesscontroldomain.ErrInvalidMember)
		return
	}

	result, err := s.accessControlSvc.AddMember(c.Request.Context(), actor, groupID, ref)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(upsertStatus(result), gin.H{"result": result})
}

func (s *Server) RemoveAccessControlGroupMember(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	ref, ok := memberRef(c.Param("kind"), c.Param("memberID"))
	if !ok {
		AbortWithError(c, accesscontroldomain.ErrInvalidMember)
		return
	}

	if err := s.accessControlSvc.RemoveMember(c.Request.Context(), actor, groupID, ref); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type grantTagRequest struct {
	TagID string `json:"tag_id"`
}

func (s *Server) GrantAccessControlGroupTag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req grantTagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	tagID, err := parseOptionalSnowflakeID(req.TagID)
	if err != nil || tagID == nil {
		AbortWithError(c, newValidationError("tag_id", "invalid_tag_id", "invalid tag id"))
		return
	}

	result, err := s.accessControlSvc.GrantTag(c.Request.Context(), actor, groupID, *tagID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(upsertStatus(result), gin.H{"result": result})
}

func (s *Server) RevokeAccessControlGroupTag(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	groupID, ok := pathID(c, "id")
	if !ok {
		return
	}
	tagID, ok := pathID(c, "tagID")
	if !ok {
		return
	}

	if err := s.accessControlSvc.RevokeTag(c.Request.Context(), actor, groupID, tagID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func memberRef(kind, id string) (accesscontroldomain.MemberRef, bool) {
	memberID, err := parseOptionalSnowflakeID(id)
	if err != nil || memberID == nil {
		return accesscontroldomain.MemberRef{}, false
	}
	ref := accesscontroldomain.MemberRef{
		Kind: accesscontroldomain.MemberKind(strings.TrimSpace(kind)),
		ID:   *memberID,
	}
	return ref, ref.Valid()
}

func upsertStatus(result pkgdb.UpsertResult) int {
	switch result {
	case pkgdb.UpsertCreated, pkgdb.UpsertRestored:
		return http.StatusCreated
	default:
		return http.StatusOK
	}
}
