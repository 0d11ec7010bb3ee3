package handlers

import (
	"github.com/gin-gonic/gin"

	types "github.com/yungbote/tutorbridge-backend/internal/domain"
	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

type CurriculumHandler struct {
	log       *logger.Logger
	curricula services.CurriculumService
}

func NewCurriculumHandler(log *logger.Logger, curricula services.CurriculumService) *CurriculumHandler {
	return &CurriculumHandler{log: log.With("handler", "CurriculumHandler"), curricula: curricula}
}

type generateRequest struct {
	ParentID string `json:"parentId"`
	ChildID  string `json:"childId"`
	Subject  string `json:"subject"`
	AgeRange string `json:"ageRange"`
}

// generatedPayload flattens the content next to the new id.
func generatedPayload(c *types.Curriculum) gin.H {
	return gin.H{
		"curriculumId": c.ID,
		"status":       c.Status,
		"title":        c.Title,
		"overview":     c.Overview,
		"objectives":   c.Objectives,
		"keyConcepts":  c.KeyConcepts,
		"lessons":      c.Lessons,
		"assessment":   c.Assessment,
		"resources":    c.Resources,
	}
}

// POST /api/generateCurriculum
func (h *CurriculumHandler) Generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	ids, err := parseIDs("parentId", req.ParentID, "childId", req.ChildID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cur, err := h.curricula.Generate(c.Request.Context(), services.GenerateCurriculumInput{
		ParentID: ids[0],
		ChildID:  ids[1],
		Subject:  req.Subject,
		AgeRange: req.AgeRange,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, generatedPayload(cur))
}

type approveRequest struct {
	CurriculumID string `json:"curriculumId"`
	ParentID     string `json:"parentId"`
	ChildID      string `json:"childId"`
}

// POST /api/approveCurriculum
func (h *CurriculumHandler) Approve(c *gin.Context) {
	var req approveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	ids, err := parseIDs("curriculumId", req.CurriculumID, "parentId", req.ParentID, "childId", req.ChildID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if _, err := h.curricula.Approve(c.Request.Context(), ids[0], ids[1], ids[2]); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

type changeRequest struct {
	CurriculumID  string `json:"curriculumId"`
	ParentID      string `json:"parentId"`
	ChangeRequest string `json:"changeRequest"`
}

// POST /api/requestCurriculumChanges
func (h *CurriculumHandler) RequestChanges(c *gin.Context) {
	var req changeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	ids, err := parseIDs("curriculumId", req.CurriculumID, "parentId", req.ParentID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cur, err := h.curricula.RequestChanges(c.Request.Context(), ids[0], ids[1], req.ChangeRequest)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true, "curriculum": cur})
}

type cancelRequest struct {
	CurriculumID string `json:"curriculumId"`
	ParentID     string `json:"parentId"`
}

// POST /api/cancelCurriculum
func (h *CurriculumHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	ids, err := parseIDs("curriculumId", req.CurriculumID, "parentId", req.ParentID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.curricula.Cancel(c.Request.Context(), ids[0], ids[1]); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// DELETE /api/admin/curricula/:id
func (h *CurriculumHandler) Purge(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	if err := h.curricula.Purge(c.Request.Context(), id); err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"success": true})
}

// GET /api/curricula/:id
func (h *CurriculumHandler) Get(c *gin.Context) {
	id, err := parseID("id", c.Param("id"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	cur, err := h.curricula.Get(c.Request.Context(), id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curriculum": cur})
}

// GET /api/child/approvedCurricula?childId=
func (h *CurriculumHandler) ApprovedForChild(c *gin.Context) {
	childID, err := parseID("childId", c.Query("childId"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	list, err := h.curricula.ListApproved(c.Request.Context(), childID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curricula": list})
}

// GET /api/parent/curricula?parentId=&status=
func (h *CurriculumHandler) ListForParent(c *gin.Context) {
	parentID, err := parseID("parentId", c.Query("parentId"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	list, err := h.curricula.ListForParent(c.Request.Context(), parentID, c.Query("status"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"curricula": list})
}
