package identity

import (
	"context"
	"dream-san/internal/logger"
	"dream-san/internal/repository/db"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = db.ErrInvalidCredentials
	ErrEmailTaken         = db.ErrEmailTaken
	ErrIdentityTaken      = db.ErrIdentityTaken
)

const localProvider = "local"

// ExternalIdentity is a user as asserted by the identity provider
type ExternalIdentity struct {
	Provider   string
	Subject    string
	Email      string
	GivenName  string
	FamilyName string
	AvatarURL  string
}

// IdentityService maps logins to local user records
type IdentityService struct {
	db          db.Database
	signupGrant int
	bcryptCost  int
}

// NewIdentityService creates a new IdentityService. New users start with signupGrant tokens.
func NewIdentityService(database db.Database, signupGrant int) *IdentityService {
	return &IdentityService{
		db:          database,
		signupGrant: signupGrant,
		bcryptCost:  bcrypt.DefaultCost,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// SyncUser finds the user for a provider identity, linking or creating the record as needed
func (s *IdentityService) SyncUser(ctx context.Context, ext ExternalIdentity) (*db.User, error) {
	email := normalizeEmail(ext.Email)
	if email == "" || ext.Subject == "" {
		return nil, fmt.Errorf("identity requires subject and email")
	}

	profile := db.UserProfile{
		FirstName:    ext.GivenName,
		LastName:     ext.FamilyName,
		AvatarURL:    ext.AvatarURL,
		AuthProvider: ext.Provider,
		ExternalID:   ext.Subject,
	}

	user, err := s.db.GetUserByExternalID(ctx, ext.Provider, ext.Subject)
	if errors.Is(err, db.ErrUserNotFound) {
		user, err = s.db.GetUserByEmail(ctx, email)
	}

	switch {
	case err == nil:
		return s.refreshProfile(ctx, user, profile)
	case !errors.Is(err, db.ErrUserNotFound):
		return nil, fmt.Errorf("error looking up user: %w", err)
	}

	created, err := s.db.CreateUser(ctx, db.NewUser{
		Email:        email,
		FirstName:    ext.GivenName,
		LastName:     ext.FamilyName,
		AvatarURL:    ext.AvatarURL,
		AuthProvider: ext.Provider,
		ExternalID:   ext.Subject,
		TokenBalance: s.signupGrant,
	})
	if errors.Is(err, db.ErrIdentityTaken) {
		// Another login for the same provider subject won the insert
		winner, lookupErr := s.db.GetUserByExternalID(ctx, ext.Provider, ext.Subject)
		if lookupErr != nil {
			return nil, fmt.Errorf("error re-reading user after signup race: %w", lookupErr)
		}
		return s.refreshProfile(ctx, winner, profile)
	}
	if errors.Is(err, db.ErrEmailTaken) {
		// Another login for the same email won the insert
		winner, lookupErr := s.db.GetUserByEmail(ctx, email)
		if lookupErr != nil {
			return nil, fmt.Errorf("error re-reading user after signup race: %w", lookupErr)
		}
		return s.refreshProfile(ctx, winner, profile)
	}
	if err != nil {
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	logger.Log.WithFields(logrus.Fields{
		"user_id":  created.ID,
		"provider": ext.Provider,
		"grant":    s.signupGrant,
	}).Info("Registered user from identity provider")

	return created, nil
}

func (s *IdentityService) refreshProfile(ctx context.Context, user *db.User, profile db.UserProfile) (*db.User, error) {
	if user.FirstName == profile.FirstName &&
		user.LastName == profile.LastName &&
		user.AvatarURL == profile.AvatarURL &&
		user.AuthProvider == profile.AuthProvider &&
		user.ExternalID == profile.ExternalID {
		return user, nil
	}

	if err := s.db.UpdateUserProfile(ctx, user.ID, profile); err != nil {
		return nil, fmt.Errorf("error updating user profile: %w", err)
	}

	user.FirstName = profile.FirstName
	user.LastName = profile.LastName
	user.AvatarURL = profile.AvatarURL
	user.AuthProvider = profile.AuthProvider
	user.ExternalID = profile.ExternalID
	return user, nil
}

// Register creates a local email/password account with the signup grant
func (s *IdentityService) Register(ctx context.Context, email, password, givenName, familyName string) (*db.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user, err := s.db.CreateUser(ctx, db.NewUser{
		Email:        normalizeEmail(email),
		FirstName:    givenName,
		LastName:     familyName,
		PasswordHash: string(hash),
		AuthProvider: localProvider,
		TokenBalance: s.signupGrant,
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate checks a local password. Unknown emails and wrong passwords are indistinguishable.
func (s *IdentityService) Authenticate(ctx context.Context, email, password string) (*db.User, error) {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		logger.Log.WithField("user_id", user.ID).Info("Login failed: invalid password")
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUser returns the user by id
func (s *IdentityService) GetUser(ctx context.Context, userID string) (*db.User, error) {
	return s.db.GetUserByID(ctx, userID)
}
