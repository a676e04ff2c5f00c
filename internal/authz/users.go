package authz

import (
	"context"
	"strings"

	"authd.dev/internal/identity"
	"authd.dev/internal/usertoken"
)

// VerifyEmailResult reports the user whose email was verified.
type VerifyEmailResult struct {
	Result
	UserID string
}

// VerifyEmail consumes a verification token and activates the invited
// user. Expired, consumed and tampered tokens all produce the same
// message.
func (s *Service) VerifyEmail(ctx context.Context, rawToken string) VerifyEmailResult {
	if s.tokens == nil {
		return VerifyEmailResult{Result: Fail("This verification link is invalid or has expired.")}
	}
	tok, err := s.tokens.Redeem(ctx, rawToken, usertoken.TypeEmailVerify)
	if err != nil {
		return VerifyEmailResult{Result: Fail("This verification link is invalid or has expired.")}
	}
	now := s.now()
	if err := s.store.Users(ctx).UpdateStatus(ctx, tok.UserID, StatusActive, &now); err != nil {
		return VerifyEmailResult{Result: Fail("This verification link is invalid or has expired.")}
	}
	return VerifyEmailResult{Result: OK("Email verified."), UserID: tok.UserID}
}

// ChangePassword replaces a user's password after verifying the current
// one, clearing any forced-change flag. Callers revoke the user's other
// sessions afterwards.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) Result {
	if len(strings.TrimSpace(next)) < 8 {
		return Invalid("Password could not be changed.", map[string]string{"password": "Password must be at least 8 characters."})
	}
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return Denied()
	}
	if err := identity.VerifyPassword(user.PasswordHash, current); err != nil {
		return Invalid("Password could not be changed.", map[string]string{"currentPassword": "Current password is incorrect."})
	}
	hash, err := identity.HashPassword(next)
	if err != nil {
		return Fail("Password could not be changed.")
	}
	if err := s.store.Users(ctx).UpdatePassword(ctx, userID, hash, false); err != nil {
		return Fail("Password could not be changed.")
	}
	return OK("Password changed.")
}
