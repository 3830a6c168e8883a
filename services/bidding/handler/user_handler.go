package handler

import (
	"net/http"

	"auction-settlement/internal/settlement"
	"auction-settlement/services/bidding/helpers"
	"auction-settlement/utils"

	"github.com/gin-gonic/gin"
)

// RegisterHandler handles POST /users/register
func (h *BiddingHandler) RegisterHandler(c *gin.Context) {
	var req helpers.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}
	document, err := formUpload(c, "document")
	if err != nil {
		helpers.HandleBindError(c, "RegisterHandler", err)
		return
	}

	user, err := h.service.Register(c.Request.Context(), settlement.RegisterRequest{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		CompanyName:    req.CompanyName,
		CompanyAddress: req.CompanyAddress,
		Phone:          req.Phone,
		AlternatePhone: req.AlternatePhone,
		RCNumber:       req.RCNumber,
		PostalCode:     req.PostalCode,
		Email:          req.Email,
		Password:       req.Password,
	}, document)
	if err != nil {
		helpers.HandleServiceError(c, "RegisterHandler", err, map[string]any{"email": req.Email})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, user, "registration successful, check your email for the verification code")
	helpers.LogSuccess("RegisterHandler", "user registered", map[string]any{"user_id": user.ID})
}

// GetUserHandler handles GET /users/:user_id
func (h *BiddingHandler) GetUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	user, err := h.service.GetUser(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "GetUserHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, user, "user retrieved successfully")
}

// ApproveUserHandler handles PATCH /users/:user_id/approve
func (h *BiddingHandler) ApproveUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	user, err := h.service.ApproveUser(c.Request.Context(), userID)
	if err != nil {
		helpers.HandleServiceError(c, "ApproveUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, user, "user approved successfully")
	helpers.LogSuccess("ApproveUserHandler", "user approved", map[string]any{"user_id": userID})
}

// RejectUserHandler handles DELETE /users/:user_id/reject
func (h *BiddingHandler) RejectUserHandler(c *gin.Context) {
	userID := c.Param("user_id")
	if err := h.service.RejectUser(c.Request.Context(), userID); err != nil {
		helpers.HandleServiceError(c, "RejectUserHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "user rejected successfully")
	helpers.LogSuccess("RejectUserHandler", "user rejected", map[string]any{"user_id": userID})
}

// VerifyEmailHandler handles PATCH /users/verify
func (h *BiddingHandler) VerifyEmailHandler(c *gin.Context) {
	var req helpers.VerifyEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "VerifyEmailHandler", err)
		return
	}

	user, err := h.service.VerifyEmail(c.Request.Context(), req.UserID, req.Code)
	if err != nil {
		helpers.HandleServiceError(c, "VerifyEmailHandler", err, map[string]any{"user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, user, "email verified successfully")
	helpers.LogSuccess("VerifyEmailHandler", "email verified", map[string]any{"user_id": req.UserID})
}

// ResendCodeHandler handles POST /users/resend-otp
func (h *BiddingHandler) ResendCodeHandler(c *gin.Context) {
	var req helpers.ResendCodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ResendCodeHandler", err)
		return
	}

	if err := h.service.ResendVerification(c.Request.Context(), req.UserID); err != nil {
		helpers.HandleServiceError(c, "ResendCodeHandler", err, map[string]any{"user_id": req.UserID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "verification code sent")
}

// LoginHandler handles POST /auth/login
func (h *BiddingHandler) LoginHandler(c *gin.Context) {
	var req helpers.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "LoginHandler", err)
		return
	}

	result, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		helpers.HandleServiceError(c, "LoginHandler", err, map[string]any{"email": req.Email})
		return
	}

	utils.JSONResponse(c, http.StatusOK, result, "login successful")
	helpers.LogSuccess("LoginHandler", "login successful", map[string]any{"user_id": result.User.ID})
}

// ForgotPasswordHandler handles POST /auth/forgot-password
func (h *BiddingHandler) ForgotPasswordHandler(c *gin.Context) {
	var req helpers.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ForgotPasswordHandler", err)
		return
	}

	if err := h.service.ForgotPassword(c.Request.Context(), req.Email); err != nil {
		helpers.HandleServiceError(c, "ForgotPasswordHandler", err, map[string]any{"email": req.Email})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "reset code sent")
}

// ResetPasswordHandler handles POST /auth/reset-password
func (h *BiddingHandler) ResetPasswordHandler(c *gin.Context) {
	var req helpers.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ResetPasswordHandler", err)
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		helpers.HandleServiceError(c, "ResetPasswordHandler", err, map[string]any{"email": req.Email})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "password reset successfully")
	helpers.LogSuccess("ResetPasswordHandler", "password reset", map[string]any{"email": req.Email})
}
