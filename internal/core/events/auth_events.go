package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeUserLoggedIn           = "auth.user_logged_in"
	EventTypeLoginFailed            = "auth.login_failed"
	EventTypePasswordResetRequested = "auth.password_reset_requested"
	EventTypePasswordChanged        = "auth.password_changed"
)

type UserLoggedInEvent struct {
	BaseEvent
	UserID   int64  `json:"user_id"`
	Username string `json:"username"`
}

func NewUserLoggedInEvent(userID int64, username string) *UserLoggedInEvent {
	return &UserLoggedInEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeUserLoggedIn,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id":  userID,
				"username": username,
			},
		},
		UserID:   userID,
		Username: username,
	}
}

// LoginFailedEvent deliberately omits the failure cause.
type LoginFailedEvent struct {
	BaseEvent
	Username string `json:"username"`
}

func NewLoginFailedEvent(username string) *LoginFailedEvent {
	return &LoginFailedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypeLoginFailed,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"username": username,
			},
		},
		Username: username,
	}
}

// PasswordResetRequestedEvent hands the reset token to the mail collaborator.
// The token is kept out of Data so generic event logging never prints it.
type PasswordResetRequestedEvent struct {
	BaseEvent
	UserID int64  `json:"user_id"`
	Email  string `json:"email"`
	Token  string `json:"-"`
}

func NewPasswordResetRequestedEvent(userID int64, email, token string) *PasswordResetRequestedEvent {
	return &PasswordResetRequestedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePasswordResetRequested,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
				"email":   email,
			},
		},
		UserID: userID,
		Email:  email,
		Token:  token,
	}
}

type PasswordChangedEvent struct {
	BaseEvent
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

const (
	PasswordChangeReasonReset  = "reset"
	PasswordChangeReasonChange = "change"
	PasswordChangeReasonAdmin  = "admin"
)

func NewPasswordChangedEvent(userID int64, reason string) *PasswordChangedEvent {
	return &PasswordChangedEvent{
		BaseEvent: BaseEvent{
			ID:        uuid.New().String(),
			Type:      EventTypePasswordChanged,
			Timestamp: time.Now(),
			Data: map[string]interface{}{
				"user_id": userID,
				"reason":  reason,
			},
		},
		UserID: userID,
		Reason: reason,
	}
}
