package auth

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/montagehq/montage/internal/lib/logger/sl"
	"github.com/montagehq/montage/internal/models"
	"github.com/montagehq/montage/internal/service"

	"golang.org/x/crypto/bcrypt"
)

// TODO: enable refresh token

// Auth authenticates the single editor account. The deployment is
// single-tenant: one root login whose bcrypt hash comes from the
// environment, no account storage.
type Auth struct {
	log          *slog.Logger
	jwtMaker     jwtMaker
	rootPassHash []byte
	tokenTTL     time.Duration
}

type jwtMaker interface {
	NewToken(editor models.Editor, duration time.Duration) (string, error)
}

// New returns new instance of authentication service
func New(
	log *slog.Logger,
	jwtMaker jwtMaker,
	rootPassHash []byte,
	tokenTTL time.Duration,
) *Auth {
	return &Auth{
		log:          log,
		jwtMaker:     jwtMaker,
		rootPassHash: rootPassHash,
		tokenTTL:     tokenTTL,
	}
}

// Login checks the credentials and returns an access token.
//
// Unknown logins and wrong passwords are indistinguishable to the
// caller.
func (a *Auth) Login(_ context.Context, login string, password string) (string, error) {
	const op = "Auth.Login"

	log := a.log.With(
		slog.String("op", op),
		slog.String("editorname", login),
	)

	log.Info("attempting to login")

	if login != models.RootLogin {
		log.Warn("unknown login")

		return "", fmt.Errorf("%s: %w", op, service.ErrInvalidCredentials)
	}

	if err := bcrypt.CompareHashAndPassword(a.rootPassHash, []byte(password)); err != nil {
		log.Info("invalid credentials", sl.Err(err))

		return "", fmt.Errorf("%s: %w", op, service.ErrInvalidCredentials)
	}

	log.Info("logged in successfully")

	token, err := a.jwtMaker.NewToken(models.Editor{ID: models.RootID, Login: models.RootLogin}, a.tokenTTL)
	if err != nil {
		log.Error("failed to generate token", sl.Err(err))

		return "", fmt.Errorf("%s: %w", op, err)
	}

	return token, nil
}
