package form

//go:generate mockgen -source=form.go -destination=mocks/mocks.go -package=mocks UserStore,Hasher

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
	"golang.org/x/crypto/bcrypt"

	"accounts/internal/users/form/mocks"
	"accounts/internal/users/models"
	"accounts/internal/users/password"
	"accounts/internal/users/store"
	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/platform/sentinel"
	"accounts/pkg/requestcontext"
)

// =============================================================================
// Registration Form Test Suite
// =============================================================================
// Validation runs against the in-memory store; store failures and save-time
// races use mocks.

type RegistrationSuite struct {
	suite.Suite
	ctx     context.Context
	store   *store.InMemory
	hasher  *password.Hasher
	builder *Builder
}

func TestRegistrationSuite(t *testing.T) {
	suite.Run(t, new(RegistrationSuite))
}

func (s *RegistrationSuite) SetupTest() {
	s.ctx = context.Background()
	s.store = store.NewInMemory()
	s.hasher = password.NewHasher(bcrypt.MinCost)
	s.builder = NewBuilder(s.store, password.NewPolicy(password.DefaultMinLength), s.hasher)
}

func submission(overrides map[string]string) url.Values {
	values := url.Values{
		FieldUsername:  {"alice"},
		FieldFirstName: {"A"},
		FieldLastName:  {"B"},
		FieldEmail:     {"a@x.com"},
		FieldPassword1: {"Str0ng!Pass"},
		FieldPassword2: {"Str0ng!Pass"},
	}
	for k, v := range overrides {
		values.Set(k, v)
	}
	return values
}

func (s *RegistrationSuite) seed(username, email string) {
	hash, err := s.hasher.Hash("An0ther!Secret")
	s.Require().NoError(err)
	user, err := models.NewUser(id.NewUserID(), models.NewUserParams{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
	}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, user))
}

func (s *RegistrationSuite) count() int {
	n, err := s.store.Count(s.ctx)
	s.Require().NoError(err)
	return n
}

func (s *RegistrationSuite) TestUnboundForm() {
	f := s.builder.Unbound()

	s.False(f.IsBound())
	s.False(f.HasErrors())
	s.Empty(f.Value(FieldUsername))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.False(f.HasErrors())

	_, err = f.Save(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(0, s.count())
}

func (s *RegistrationSuite) TestValidSubmissionCreatesUser() {
	joined := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(s.ctx, joined)
	f := s.builder.Bind(submission(nil))

	ok, err := f.Validate(ctx)
	s.Require().NoError(err)
	s.Require().True(ok, "unexpected errors: %v %v", f.errors, f.NonFieldErrors())

	user, err := f.Save(ctx)
	s.Require().NoError(err)
	s.Equal("alice", user.Username)
	s.Equal("A", user.FirstName)
	s.Equal("B", user.LastName)
	s.Equal("a@x.com", user.Email)
	s.False(user.Verified)
	s.True(user.Active)
	s.False(user.Staff)
	s.False(user.Superuser)
	s.Nil(user.LastLogin)
	s.Equal(joined, user.DateJoined)
	s.NotEqual("Str0ng!Pass", user.PasswordHash)
	s.NoError(s.hasher.Verify("Str0ng!Pass", user.PasswordHash))

	stored, err := s.store.FindByEmail(s.ctx, "a@x.com")
	s.Require().NoError(err)
	s.Equal(user.ID, stored.ID)
	s.Equal(1, s.count())
}

func (s *RegistrationSuite) TestPasswordMismatch() {
	f := s.builder.Bind(submission(map[string]string{
		FieldPassword1: "abc",
		FieldPassword2: "abd",
	}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal([]string{"The two password fields didn't match."}, f.NonFieldErrors())
	s.Empty(f.Errors(FieldPassword1), "strength is only checked when both entries match")
	s.Equal(0, s.count())
}

func (s *RegistrationSuite) TestDuplicateEmail() {
	s.seed("bob", "a@x.com")

	for _, email := range []string{"a@x.com", "A@X.COM", "  a@x.com "} {
		s.Run(email, func() {
			f := s.builder.Bind(submission(map[string]string{FieldEmail: email}))

			ok, err := f.Validate(s.ctx)
			s.Require().NoError(err)
			s.False(ok)
			s.Equal([]string{"A user with that email address already exists."}, f.Errors(FieldEmail))
			s.Empty(f.Errors(FieldUsername))
		})
	}
	s.Equal(1, s.count())
}

func (s *RegistrationSuite) TestDuplicateUsernameIgnoresCase() {
	s.seed("Alice", "other@x.com")
	f := s.builder.Bind(submission(nil))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal([]string{"A user with that username already exists."}, f.Errors(FieldUsername))
}

func (s *RegistrationSuite) TestFieldValidation() {
	tests := []struct {
		name    string
		field   string
		value   string
		message string
	}{
		{"username required", FieldUsername, "  ", "This field is required."},
		{"username charset", FieldUsername, "al ice!", "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."},
		{"username too long", FieldUsername, strings.Repeat("u", 151), "Ensure this value has at most 150 characters (it has 151)."},
		{"first name too long", FieldFirstName, strings.Repeat("é", 151), "Ensure this value has at most 150 characters (it has 151)."},
		{"last name too long", FieldLastName, strings.Repeat("n", 152), "Ensure this value has at most 150 characters (it has 152)."},
		{"email required", FieldEmail, "", "This field is required."},
		{"email syntax", FieldEmail, "not-an-email", "Enter a valid email address."},
		{"username null character", FieldUsername, "ali\x00ce", "Null characters are not allowed."},
		{"first name null character", FieldFirstName, "A\x00B", "Null characters are not allowed."},
		{"last name invalid utf-8", FieldLastName, "\xff\xfe", "Enter a valid value."},
		{"email null character", FieldEmail, "a\x00@x.com", "Null characters are not allowed."},
		{"email invalid utf-8", FieldEmail, "a\xff@x.com", "Enter a valid value."},
		{"password null character", FieldPassword1, "Str0ng!\x00Pass", "Null characters are not allowed."},
		{"confirmation invalid utf-8", FieldPassword2, "Str0ng!\xffPass", "Enter a valid value."},
		{"password required", FieldPassword1, "", "This field is required."},
		{"confirmation required", FieldPassword2, "", "This field is required."},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			f := s.builder.Bind(submission(map[string]string{tt.field: tt.value}))

			ok, err := f.Validate(s.ctx)
			s.Require().NoError(err)
			s.False(ok)
			s.Contains(f.Errors(tt.field), tt.message)
		})
	}
	s.Equal(0, s.count())
}

func (s *RegistrationSuite) TestUnstorableTextIsRejectedBeforeSave() {
	f := s.builder.Bind(submission(map[string]string{
		FieldFirstName: "A\x00B",
		FieldLastName:  "\xff\xfe",
	}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal([]string{"Null characters are not allowed."}, f.Errors(FieldFirstName))
	s.Equal([]string{"Enter a valid value."}, f.Errors(FieldLastName))
	s.Empty(f.NonFieldErrors())

	_, err = f.Save(s.ctx)
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	s.Equal(0, s.count())
}

func (s *RegistrationSuite) TestOptionalNamesMayBeBlank() {
	f := s.builder.Bind(submission(map[string]string{FieldFirstName: "", FieldLastName: ""}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.True(ok)

	user, err := f.Save(s.ctx)
	s.Require().NoError(err)
	s.Empty(user.FirstName)
	s.Empty(user.LastName)
}

func (s *RegistrationSuite) TestWeakPasswordErrorsOnPassword1() {
	f := s.builder.Bind(submission(map[string]string{
		FieldPassword1: "12345678",
		FieldPassword2: "12345678",
	}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Equal([]string{"This password is too common.", "This password is entirely numeric."}, f.Errors(FieldPassword1))
	s.Empty(f.NonFieldErrors())
}

func (s *RegistrationSuite) TestPasswordSimilarToUsername() {
	f := s.builder.Bind(submission(map[string]string{
		FieldUsername:  "rosalind",
		FieldPassword1: "rosalind7",
		FieldPassword2: "rosalind7",
	}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.False(ok)
	s.Contains(f.Errors(FieldPassword1), "The password is too similar to the username.")
}

func (s *RegistrationSuite) TestEmailDomainIsLowercased() {
	f := s.builder.Bind(submission(map[string]string{FieldEmail: " Alice.Smith@Example.COM "}))

	ok, err := f.Validate(s.ctx)
	s.Require().NoError(err)
	s.Require().True(ok)

	user, err := f.Save(s.ctx)
	s.Require().NoError(err)
	s.Equal("Alice.Smith@example.com", user.Email)
}

func (s *RegistrationSuite) TestRenderViewNeverEchoesPasswords() {
	f := s.builder.Bind(submission(map[string]string{FieldEmail: "bad"}))
	_, err := f.Validate(s.ctx)
	s.Require().NoError(err)

	s.Equal("alice", f.Value(FieldUsername))
	s.Equal("bad", f.Value(FieldEmail))
	s.Empty(f.Value(FieldPassword1))
	s.Empty(f.Value(FieldPassword2))

	fields := f.Fields()
	s.Require().Len(fields, 6)
	s.Equal(FieldUsername, fields[0].Name)
	s.Equal(FieldPassword2, fields[5].Name)
	s.Equal("password", fields[4].Type)
	s.Empty(fields[4].Value)
	s.Contains(fields[4].HelpText, "Your password must contain at least 8 characters.")
	s.Equal([]string{"Enter a valid email address."}, fields[3].Errors)
}

func (s *RegistrationSuite) TestSaveRequiresSuccessfulValidation() {
	s.Run("not validated", func() {
		f := s.builder.Bind(submission(nil))
		_, err := f.Save(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("validated but invalid", func() {
		f := s.builder.Bind(submission(map[string]string{FieldEmail: ""}))
		_, err := f.Validate(s.ctx)
		s.Require().NoError(err)
		_, err = f.Save(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("saved twice", func() {
		f := s.builder.Bind(submission(map[string]string{FieldUsername: "carol", FieldEmail: "carol@x.com"}))
		_, err := f.Validate(s.ctx)
		s.Require().NoError(err)
		_, err = f.Save(s.ctx)
		s.Require().NoError(err)
		_, err = f.Save(s.ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
	s.Equal(1, s.count())
}

// =============================================================================
// Store failures and races
// =============================================================================

type RegistrationStoreSuite struct {
	suite.Suite
	ctrl    *gomock.Controller
	store   *mocks.MockUserStore
	hasher  *mocks.MockHasher
	builder *Builder
	userID  id.UserID
}

func TestRegistrationStoreSuite(t *testing.T) {
	suite.Run(t, new(RegistrationStoreSuite))
}

func (s *RegistrationStoreSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockUserStore(s.ctrl)
	s.hasher = mocks.NewMockHasher(s.ctrl)
	s.userID = id.NewUserID()
	s.builder = NewBuilder(s.store, password.NewPolicy(0), s.hasher,
		WithIDGenerator(func() id.UserID { return s.userID }))
}

func (s *RegistrationStoreSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *RegistrationStoreSuite) validForm() *Registration {
	s.store.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, sentinel.ErrNotFound)
	s.store.EXPECT().FindByEmail(gomock.Any(), "a@x.com").Return(nil, sentinel.ErrNotFound)
	f := s.builder.Bind(submission(nil))
	ok, err := f.Validate(context.Background())
	s.Require().NoError(err)
	s.Require().True(ok)
	return f
}

func (s *RegistrationStoreSuite) TestLookupFailureIsInfrastructureError() {
	s.store.EXPECT().FindByUsername(gomock.Any(), "alice").Return(nil, errors.New("db down"))

	f := s.builder.Bind(submission(nil))
	ok, err := f.Validate(context.Background())
	s.False(ok)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}

func (s *RegistrationStoreSuite) TestConflictAtSaveBecomesFormError() {
	tests := []struct {
		name    string
		err     error
		message string
	}{
		{"email", models.ErrEmailTaken, "A user with that email address already exists."},
		{"username", models.ErrUsernameTaken, "A user with that username already exists."},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			f := s.validForm()
			s.hasher.EXPECT().Hash("Str0ng!Pass").Return("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", nil)
			s.store.EXPECT().Create(gomock.Any(), gomock.Any()).Return(tt.err)

			user, err := f.Save(context.Background())
			s.Nil(user)
			s.True(dErrors.HasCode(err, dErrors.CodeConflict))
			s.ErrorIs(err, sentinel.ErrAlreadyUsed)
			s.False(f.Valid())
			s.Equal([]string{tt.message}, f.NonFieldErrors())
		})
	}
}

func (s *RegistrationStoreSuite) TestCreateFailureIsInternal() {
	f := s.validForm()
	s.hasher.EXPECT().Hash("Str0ng!Pass").Return("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy", nil)
	s.store.EXPECT().Create(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, u *models.User) error {
		s.Equal(s.userID, u.ID)
		return errors.New("disk full")
	})

	_, err := f.Save(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Empty(f.NonFieldErrors())
}

func (s *RegistrationStoreSuite) TestHashFailureStopsBeforeCreate() {
	f := s.validForm()
	s.hasher.EXPECT().Hash(gomock.Any()).Return("", errors.New("rng exhausted"))

	_, err := f.Save(context.Background())
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
}
