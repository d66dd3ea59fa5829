package identity

import (
	"context"
	"dream-san/internal/repository/db"
	"dream-san/internal/repository/sqlite"
	"dream-san/internal/testutil"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newSQLiteService(t *testing.T) (*IdentityService, *sqlite.SQLiteDB) {
	t.Helper()
	database, err := sqlite.NewSQLiteDB(filepath.Join(t.TempDir(), "identity.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	service := NewIdentityService(database, 250)
	service.bcryptCost = bcrypt.MinCost
	return service, database
}

func TestSyncUser_CreatesWithSignupGrant(t *testing.T) {
	service, database := newSQLiteService(t)
	ctx := context.Background()

	user, err := service.SyncUser(ctx, ExternalIdentity{
		Provider: "kinde", Subject: "kp_1", Email: "Dreamer@Example.com", GivenName: "Ada",
	})
	require.NoError(t, err)
	assert.Equal(t, "dreamer@example.com", user.Email)
	assert.Equal(t, 250, user.TokenBalance)
	assert.Equal(t, 0, user.TokensSpent)
	assert.False(t, user.IsSubscribed)

	totals, err := database.SumTokenTransactions(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{db.KindSignup: 250}, totals)
}

func TestSyncUser_ReturningUserIsNotRegranted(t *testing.T) {
	service, _ := newSQLiteService(t)
	ctx := context.Background()
	ext := ExternalIdentity{Provider: "kinde", Subject: "kp_1", Email: "dreamer@example.com", GivenName: "Ada"}

	first, err := service.SyncUser(ctx, ext)
	require.NoError(t, err)

	ext.GivenName = "Augusta"
	ext.AvatarURL = "https://img/new.png"
	second, err := service.SyncUser(ctx, ext)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 250, second.TokenBalance)
	assert.Equal(t, "Augusta", second.FirstName)
	assert.Equal(t, "https://img/new.png", second.AvatarURL)
}

func TestSyncUser_LinksExistingLocalAccount(t *testing.T) {
	service, database := newSQLiteService(t)
	ctx := context.Background()

	local, err := service.Register(ctx, "dreamer@example.com", "hunter22", "Ada", "")
	require.NoError(t, err)

	linked, err := service.SyncUser(ctx, ExternalIdentity{Provider: "kinde", Subject: "kp_9", Email: "DREAMER@example.com"})
	require.NoError(t, err)
	assert.Equal(t, local.ID, linked.ID)

	byExternal, err := database.GetUserByExternalID(ctx, "kinde", "kp_9")
	require.NoError(t, err)
	assert.Equal(t, local.ID, byExternal.ID)
}

func TestSyncUser_SignupRaceRereadsWinner(t *testing.T) {
	winner := &db.User{ID: "winner", Email: "dreamer@example.com", AuthProvider: "kinde", ExternalID: "kp_1"}
	lookups := 0

	mockDB := &testutil.MockDatabase{
		GetUserByExternalIDFunc: func(ctx context.Context, provider, externalID string) (*db.User, error) {
			return nil, db.ErrUserNotFound
		},
		GetUserByEmailFunc: func(ctx context.Context, email string) (*db.User, error) {
			lookups++
			if lookups == 1 {
				return nil, db.ErrUserNotFound
			}
			return winner, nil
		},
		CreateUserFunc: func(ctx context.Context, user db.NewUser) (*db.User, error) {
			return nil, db.ErrEmailTaken
		},
	}

	user, err := NewIdentityService(mockDB, 250).SyncUser(context.Background(),
		ExternalIdentity{Provider: "kinde", Subject: "kp_1", Email: "dreamer@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "winner", user.ID)
}

func TestSyncUser_IdentityRaceRereadsBySubject(t *testing.T) {
	winner := &db.User{ID: "winner", Email: "first@example.com", AuthProvider: "kinde", ExternalID: "kp_1"}
	subjectLookups := 0
	emailLookups := 0
	var updatedID string

	mockDB := &testutil.MockDatabase{
		GetUserByExternalIDFunc: func(ctx context.Context, provider, externalID string) (*db.User, error) {
			subjectLookups++
			if subjectLookups == 1 {
				return nil, db.ErrUserNotFound
			}
			assert.Equal(t, "kinde", provider)
			assert.Equal(t, "kp_1", externalID)
			return winner, nil
		},
		GetUserByEmailFunc: func(ctx context.Context, email string) (*db.User, error) {
			emailLookups++
			return nil, db.ErrUserNotFound
		},
		CreateUserFunc: func(ctx context.Context, user db.NewUser) (*db.User, error) {
			return nil, db.ErrIdentityTaken
		},
		UpdateUserProfileFunc: func(ctx context.Context, userID string, profile db.UserProfile) error {
			updatedID = userID
			return nil
		},
	}

	user, err := NewIdentityService(mockDB, 250).SyncUser(context.Background(),
		ExternalIdentity{Provider: "kinde", Subject: "kp_1", Email: "second@example.com", GivenName: "Sam"})
	require.NoError(t, err)
	assert.Equal(t, "winner", user.ID)
	assert.Equal(t, 2, subjectLookups)
	assert.Equal(t, 1, emailLookups)
	assert.Equal(t, "winner", updatedID)
}

func TestSyncUser_StorageFailure(t *testing.T) {
	mockDB := &testutil.MockDatabase{
		GetUserByExternalIDFunc: func(ctx context.Context, provider, externalID string) (*db.User, error) {
			return nil, db.Unavailable("retrieving user", errors.New("timeout"))
		},
	}

	_, err := NewIdentityService(mockDB, 250).SyncUser(context.Background(),
		ExternalIdentity{Provider: "kinde", Subject: "kp_1", Email: "a@b.co"})
	assert.ErrorIs(t, err, db.ErrStorageUnavailable)
}

func TestSyncUser_RequiresSubjectAndEmail(t *testing.T) {
	service := NewIdentityService(&testutil.MockDatabase{}, 250)

	_, err := service.SyncUser(context.Background(), ExternalIdentity{Provider: "kinde", Email: "a@b.co"})
	assert.Error(t, err)
	_, err = service.SyncUser(context.Background(), ExternalIdentity{Provider: "kinde", Subject: "kp"})
	assert.Error(t, err)
}

func TestRegisterAndAuthenticate(t *testing.T) {
	service, _ := newSQLiteService(t)
	ctx := context.Background()

	user, err := service.Register(ctx, " Sleeper@Example.com ", "correct horse", "Sam", "Sleeper")
	require.NoError(t, err)
	assert.Equal(t, "sleeper@example.com", user.Email)
	assert.Equal(t, 250, user.TokenBalance)
	assert.NotEqual(t, "correct horse", user.PasswordHash)

	_, err = service.Register(ctx, "sleeper@example.com", "other pass", "", "")
	assert.ErrorIs(t, err, ErrEmailTaken)

	authed, err := service.Authenticate(ctx, "SLEEPER@example.com", "correct horse")
	require.NoError(t, err)
	assert.Equal(t, user.ID, authed.ID)

	_, err = service.Authenticate(ctx, "sleeper@example.com", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = service.Authenticate(ctx, "nobody@example.com", "correct horse")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticate_ProviderOnlyAccount(t *testing.T) {
	service, _ := newSQLiteService(t)
	ctx := context.Background()

	_, err := service.SyncUser(ctx, ExternalIdentity{Provider: "kinde", Subject: "kp_1", Email: "sso@example.com"})
	require.NoError(t, err)

	_, err = service.Authenticate(ctx, "sso@example.com", "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}
