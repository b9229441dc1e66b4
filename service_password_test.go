package authkit

import (
	"context"
	"errors"
	"testing"
)

func TestChangePassword(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "admin@example.com", "correct horse battery")

	err := env.svc.ChangePassword(context.Background(), user.ID, "wrong current", "a brand new password")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("ChangePassword with wrong current = %v, want ErrInvalidCredentials", err)
	}

	if err := env.svc.ChangePassword(context.Background(), user.ID, "correct horse battery", "a brand new password"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	out := env.login(t, "admin@example.com", "correct horse battery")
	if out.Status != LoginInvalidCredentials {
		t.Fatal("old password still accepted after change")
	}
	env.mustLogin(t, "admin@example.com", "a brand new password")
}

func TestChangePasswordRejectsWeakNew(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "admin@example.com", "correct horse battery")

	if err := env.svc.ChangePassword(context.Background(), user.ID, "correct horse battery", "short"); !errors.Is(err, ErrValidation) {
		t.Fatalf("weak new password = %v, want ErrValidation", err)
	}
}

func TestForgotPasswordIsSilentForUnknownEmail(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin@example.com", "correct horse battery")

	if err := env.svc.ForgotPassword(context.Background(), "ghost@example.com"); err != nil {
		t.Fatalf("ForgotPassword(unknown) = %v, want nil", err)
	}
	if n := env.mailer.resetCount(); n != 0 {
		t.Fatalf("reset mails for unknown email = %d, want 0", n)
	}

	if err := env.svc.ForgotPassword(context.Background(), "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword(known) = %v, want nil", err)
	}
	if n := env.mailer.resetCount(); n != 1 {
		t.Fatalf("reset mails for known email = %d, want 1", n)
	}
}

func TestResetPassword(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin@example.com", "correct horse battery")
	out := env.mustLogin(t, "admin@example.com", "correct horse battery")

	if err := env.svc.ForgotPassword(context.Background(), "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	resetToken := env.mailer.lastResetToken()
	if resetToken == "" {
		t.Fatal("no reset token delivered")
	}

	if err := env.svc.ResetPassword(context.Background(), resetToken, "a brand new password"); err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}

	env.mustLogin(t, "admin@example.com", "a brand new password")

	// Every pre-reset session is gone.
	if _, err := env.svc.Refresh(context.Background(), out.Tokens.RefreshToken); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("Refresh after reset = %v, want ErrSessionNotFound", err)
	}
}

func TestResetPasswordSingleUse(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin@example.com", "correct horse battery")

	if err := env.svc.ForgotPassword(context.Background(), "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	resetToken := env.mailer.lastResetToken()

	if err := env.svc.ResetPassword(context.Background(), resetToken, "first new password"); err != nil {
		t.Fatalf("first ResetPassword: %v", err)
	}
	if err := env.svc.ResetPassword(context.Background(), resetToken, "second new password"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("second ResetPassword = %v, want ErrResetTokenInvalid", err)
	}

	// The first reset stands.
	env.mustLogin(t, "admin@example.com", "first new password")
}

func TestResetPasswordExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "admin@example.com", "correct horse battery")

	if err := env.svc.ForgotPassword(context.Background(), "admin@example.com"); err != nil {
		t.Fatalf("ForgotPassword: %v", err)
	}
	resetToken := env.mailer.lastResetToken()

	env.redis.FastForward(2 * testConfig().PasswordReset.TTL)
	if err := env.svc.ResetPassword(context.Background(), resetToken, "a brand new password"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("expired ResetPassword = %v, want ErrResetTokenInvalid", err)
	}
}

func TestResetPasswordGarbageToken(t *testing.T) {
	env := newTestEnv(t)

	if err := env.svc.ResetPassword(context.Background(), "not a token", "a brand new password"); !errors.Is(err, ErrResetTokenInvalid) {
		t.Fatalf("garbage token = %v, want ErrResetTokenInvalid", err)
	}
}
