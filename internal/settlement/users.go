package settlement

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"auction-settlement/internal/auth"
	"auction-settlement/internal/biddingerrors"
	"auction-settlement/internal/models"
	"auction-settlement/internal/notify"
	"auction-settlement/internal/repository"
	"auction-settlement/internal/tokenvault"
	"auction-settlement/utils"
)

// RegisterRequest describes a new bidder account
type RegisterRequest struct {
	FirstName      string
	LastName       string
	CompanyName    string
	CompanyAddress string
	Phone          string
	AlternatePhone string
	RCNumber       string
	PostalCode     string
	Email          string
	Password       string
}

// LoginResult carries the access token and the signed-in profile
type LoginResult struct {
	AccessToken string            `json:"access_token"`
	User        models.PublicUser `json:"user"`
}

type uniqueCheck struct {
	field repository.UniqueField
	value string
}

// Register creates an inactive, unverified account and mails a verification code
func (e *Engine) Register(ctx context.Context, req RegisterRequest, document *Upload) (_ models.PublicUser, err error) {
	ctx, finish := e.begin(ctx, "register")
	defer finish(&err)

	user, err := e.newUser(req)
	if err != nil {
		return models.PublicUser{}, err
	}

	checks := []uniqueCheck{
		{field: repository.FieldEmail, value: user.Email},
		{field: repository.FieldPhone, value: user.Phone},
		{field: repository.FieldAlternatePhone, value: user.AlternatePhone},
		{field: repository.FieldRCNumber, value: user.RCNumber},
	}
	for _, c := range checks {
		if c.value == "" {
			continue
		}
		taken, err := e.store.UserExists(ctx, c.field, c.value)
		if err != nil {
			return models.PublicUser{}, fmt.Errorf("settlement: failed to check %s: %w", c.field, err)
		}
		if taken {
			return models.PublicUser{}, fmt.Errorf("settlement: %w", biddingerrors.FieldConflict(c.field.String(), c.value))
		}
	}

	if document != nil {
		url, err := e.upload(ctx, "users", document)
		if err != nil {
			return models.PublicUser{}, err
		}
		user.DocumentURL = url
	}
	if err := e.store.CreateUser(ctx, user); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to register %s: %w", user.Email, err)
	}

	utils.Info("user registered", map[string]any{"user_id": user.ID})
	e.sendCode(ctx, user, tokenvault.PurposeVerifyEmail)
	return user.Public(), nil
}

func (e *Engine) newUser(req RegisterRequest) (models.User, error) {
	user := models.User{
		ID:             e.newID(),
		FirstName:      strings.TrimSpace(req.FirstName),
		LastName:       strings.TrimSpace(req.LastName),
		CompanyName:    strings.TrimSpace(req.CompanyName),
		CompanyAddress: strings.TrimSpace(req.CompanyAddress),
		Phone:          strings.TrimSpace(req.Phone),
		AlternatePhone: strings.TrimSpace(req.AlternatePhone),
		RCNumber:       strings.TrimSpace(req.RCNumber),
		PostalCode:     strings.TrimSpace(req.PostalCode),
		Email:          strings.ToLower(strings.TrimSpace(req.Email)),
		CreatedAt:      time.Now().UTC(),
	}
	if user.FirstName == "" || user.LastName == "" || user.Phone == "" {
		return models.User{}, fmt.Errorf("settlement: %w - first name, last name and phone are required", biddingerrors.ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(user.Email); err != nil || addr.Address != user.Email {
		return models.User{}, fmt.Errorf("settlement: %w - invalid email %q", biddingerrors.ErrInvalidInput, req.Email)
	}
	hash, err := e.hasher.Hash(req.Password)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = hash
	return user, nil
}

// GetUser returns a user's public profile
func (e *Engine) GetUser(ctx context.Context, id string) (_ models.PublicUser, err error) {
	ctx, finish := e.begin(ctx, "get_user")
	defer finish(&err)

	user, err := e.store.GetUser(ctx, id)
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to get user %s: %w", id, err)
	}
	return user.Public(), nil
}

// ApproveUser activates a pending account. Unverified accounts get a fresh verification code.
func (e *Engine) ApproveUser(ctx context.Context, id string) (_ models.PublicUser, err error) {
	ctx, finish := e.begin(ctx, "approve_user")
	defer finish(&err)

	user, err := e.pendingUser(ctx, id)
	if err != nil {
		return models.PublicUser{}, err
	}
	if err := e.store.SetUserActive(ctx, id); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to approve user %s: %w", id, err)
	}
	if user, err = e.store.GetUser(ctx, id); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to get user %s: %w", id, err)
	}

	utils.Info("user approved", map[string]any{"user_id": id})
	e.send(ctx, notify.Message{To: user.Email, Subject: "Your account has been approved", Template: notify.TemplateApproved,
		Data: map[string]string{"first_name": user.FirstName}})
	if !user.Verified {
		e.sendCode(ctx, user, tokenvault.PurposeVerifyEmail)
	}
	return user.Public(), nil
}

// RejectUser deletes a pending account
func (e *Engine) RejectUser(ctx context.Context, id string) (err error) {
	ctx, finish := e.begin(ctx, "reject_user")
	defer finish(&err)

	user, err := e.pendingUser(ctx, id)
	if err != nil {
		return err
	}
	if err := e.store.DeleteUser(ctx, id); err != nil {
		return fmt.Errorf("settlement: failed to reject user %s: %w", id, err)
	}

	utils.Info("user rejected", map[string]any{"user_id": id})
	e.send(ctx, notify.Message{To: user.Email, Subject: "Your registration was not approved", Template: notify.TemplateRejected,
		Data: map[string]string{"first_name": user.FirstName}})
	return nil
}

func (e *Engine) pendingUser(ctx context.Context, id string) (models.User, error) {
	user, err := e.store.GetUser(ctx, id)
	if err != nil {
		return models.User{}, fmt.Errorf("settlement: failed to get user %s: %w", id, err)
	}
	if user.Active {
		return models.User{}, fmt.Errorf("settlement: user %s: %w", id, biddingerrors.ErrUserAlreadyActive)
	}
	return user, nil
}

// VerifyEmail consumes the user's verification code and marks the email verified
func (e *Engine) VerifyEmail(ctx context.Context, userID, code string) (_ models.PublicUser, err error) {
	ctx, finish := e.begin(ctx, "verify_email")
	defer finish(&err)

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to get user %s: %w", userID, err)
	}
	if err := e.vaults[tokenvault.PurposeVerifyEmail].Consume(ctx, user.ID, code); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to verify user %s: %w", userID, err)
	}
	if err := e.store.SetUserVerified(ctx, user.ID); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to verify user %s: %w", userID, err)
	}
	if user, err = e.store.GetUser(ctx, user.ID); err != nil {
		return models.PublicUser{}, fmt.Errorf("settlement: failed to get user %s: %w", userID, err)
	}
	utils.Info("email verified", map[string]any{"user_id": userID})
	return user.Public(), nil
}

// ResendVerification issues and mails a fresh verification code
func (e *Engine) ResendVerification(ctx context.Context, userID string) (err error) {
	ctx, finish := e.begin(ctx, "resend_verification")
	defer finish(&err)

	user, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("settlement: failed to get user %s: %w", userID, err)
	}
	return e.issueAndSend(ctx, user, tokenvault.PurposeVerifyEmail)
}

// Login checks the password and returns a bidder access token
func (e *Engine) Login(ctx context.Context, email, password string) (_ LoginResult, err error) {
	ctx, finish := e.begin(ctx, "login")
	defer finish(&err)

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return LoginResult{}, err
	}
	if err := e.hasher.Compare(user.PasswordHash, password); err != nil {
		return LoginResult{}, fmt.Errorf("settlement: login: %w", err)
	}
	token, err := e.tokens.GenerateToken(user.ID, auth.RoleBidder)
	if err != nil {
		return LoginResult{}, fmt.Errorf("settlement: login: %v: %w", err, biddingerrors.ErrInternal)
	}
	utils.Info("user logged in", map[string]any{"user_id": user.ID})
	return LoginResult{AccessToken: token, User: user.Public()}, nil
}

// ForgotPassword mails a password reset code to the account owner
func (e *Engine) ForgotPassword(ctx context.Context, email string) (err error) {
	ctx, finish := e.begin(ctx, "forgot_password")
	defer finish(&err)

	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	return e.issueAndSend(ctx, user, tokenvault.PurposeResetPassword)
}

// ResetPassword consumes a reset code and replaces the password. A code
// changes the password at most once.
func (e *Engine) ResetPassword(ctx context.Context, email, code, newPassword string) (err error) {
	ctx, finish := e.begin(ctx, "reset_password")
	defer finish(&err)

	// hash first so a rejected password does not burn the code
	hash, err := e.hasher.Hash(newPassword)
	if err != nil {
		return err
	}
	user, err := e.userByEmail(ctx, email)
	if err != nil {
		return err
	}
	if err := e.vaults[tokenvault.PurposeResetPassword].Consume(ctx, user.ID, code); err != nil {
		return fmt.Errorf("settlement: failed to reset password: %w", err)
	}
	if err := e.store.SetUserPassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("settlement: failed to reset password: %w", err)
	}
	utils.Info("password reset", map[string]any{"user_id": user.ID})
	return nil
}

// userByEmail hides whether an address is registered
func (e *Engine) userByEmail(ctx context.Context, email string) (models.User, error) {
	user, err := e.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, biddingerrors.ErrNotFound) {
		return models.User{}, fmt.Errorf("settlement: %w", biddingerrors.ErrBadCredentials)
	}
	if err != nil {
		return models.User{}, fmt.Errorf("settlement: failed to look up user: %w", err)
	}
	return user, nil
}

func (e *Engine) issueAndSend(ctx context.Context, user models.User, purpose string) error {
	code, err := e.vaults[purpose].Issue(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("settlement: failed to issue %s code: %w", purpose, err)
	}
	e.send(ctx, codeMessage(user, purpose, code))
	return nil
}

// sendCode is issueAndSend for flows that must not fail once the user exists
func (e *Engine) sendCode(ctx context.Context, user models.User, purpose string) {
	if err := e.issueAndSend(ctx, user, purpose); err != nil {
		utils.Error("failed to issue code", map[string]any{
			"user_id": user.ID,
			"purpose": purpose,
			"error":   err.Error(),
		})
	}
}

func codeMessage(user models.User, purpose, code string) notify.Message {
	msg := notify.Message{
		To:   user.Email,
		Data: map[string]string{"first_name": user.FirstName, "code": code},
	}
	switch purpose {
	case tokenvault.PurposeResetPassword:
		msg.Subject = "Reset your password"
		msg.Template = notify.TemplateResetPassword
	default:
		msg.Subject = "Verify your email"
		msg.Template = notify.TemplateVerifyEmail
	}
	return msg
}
