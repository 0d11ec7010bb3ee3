package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/yungbote/tutorbridge-backend/internal/http/response"
	"github.com/yungbote/tutorbridge-backend/internal/pkg/logger"
	"github.com/yungbote/tutorbridge-backend/internal/services"
)

type AccountHandler struct {
	log     *logger.Logger
	account services.AccountService
}

func NewAccountHandler(log *logger.Logger, account services.AccountService) *AccountHandler {
	return &AccountHandler{log: log.With("handler", "AccountHandler"), account: account}
}

type signupRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Role       string `json:"role"`
	Name       string `json:"name"`
	InviteCode string `json:"inviteCode"`
}

// POST /api/signup
func (h *AccountHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	res, err := h.account.Signup(c.Request.Context(), services.SignupInput{
		Email:      req.Email,
		Password:   req.Password,
		Role:       req.Role,
		Name:       req.Name,
		InviteCode: req.InviteCode,
	})
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondCreated(c, res)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/login
func (h *AccountHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondAPIError(c, badBody(err))
		return
	}
	res, err := h.account.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, res)
}

// GET /api/userinfo?uid=
func (h *AccountHandler) UserInfo(c *gin.Context) {
	uid, err := parseID("uid", c.Query("uid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	info, err := h.account.GetUserInfo(c.Request.Context(), uid)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, info)
}

// GET /api/parent/children?parentUid=
func (h *AccountHandler) Children(c *gin.Context) {
	parentID, err := parseID("parentUid", c.Query("parentUid"))
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	kids, err := h.account.GetChildren(c.Request.Context(), parentID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, gin.H{"children": kids})
}
