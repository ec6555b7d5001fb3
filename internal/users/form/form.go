// Package form binds submitted signup values, validates them and turns a
// valid submission into a stored user.
package form

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"accounts/internal/users/models"
	"accounts/internal/users/password"
	id "accounts/pkg/domain"
	dErrors "accounts/pkg/domain-errors"
	"accounts/pkg/platform/sentinel"
	"accounts/pkg/requestcontext"
)

// Submitted field names, in display order.
const (
	FieldUsername  = "username"
	FieldFirstName = "first_name"
	FieldLastName  = "last_name"
	FieldEmail     = "email"
	FieldPassword1 = "password1"
	FieldPassword2 = "password2"
)

var fieldOrder = []string{FieldUsername, FieldFirstName, FieldLastName, FieldEmail, FieldPassword1, FieldPassword2}

const (
	msgRequired         = "This field is required."
	msgInvalidUsername  = "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	msgInvalidEmail     = "Enter a valid email address."
	msgUsernameTaken    = "A user with that username already exists."
	msgEmailTaken       = "A user with that email address already exists."
	msgPasswordMismatch = "The two password fields didn't match."
	msgNullCharacters   = "Null characters are not allowed."
	msgInvalidText      = "Enter a valid value."
)

var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

var tracer = otel.Tracer("accounts/users/form")

// UserStore is the persistence the form needs.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
}

// Hasher turns a plaintext password into its stored form.
type Hasher interface {
	Hash(pw string) (string, error)
}

// Builder creates registration forms wired to their collaborators.
type Builder struct {
	store  UserStore
	policy *password.Policy
	hasher Hasher
	newID  func() id.UserID
}

// Option configures a Builder.
type Option func(*Builder)

// WithIDGenerator replaces the random user id source.
func WithIDGenerator(fn func() id.UserID) Option {
	return func(b *Builder) {
		b.newID = fn
	}
}

func NewBuilder(store UserStore, policy *password.Policy, hasher Hasher, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		policy: policy,
		hasher: hasher,
		newID:  id.NewUserID,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Unbound returns an empty form for display. It has no errors and can never
// be saved.
func (b *Builder) Unbound() *Registration {
	return &Registration{builder: b, data: map[string]string{}}
}

// Bind returns a form holding the submitted values, ready for Validate.
func (b *Builder) Bind(values url.Values) *Registration {
	data := make(map[string]string, len(fieldOrder))
	for _, name := range fieldOrder {
		data[name] = values.Get(name)
	}
	return &Registration{builder: b, bound: true, data: data}
}

// Registration is a single signup submission.
type Registration struct {
	builder *Builder
	bound   bool
	data    map[string]string

	cleaned   map[string]string
	errors    map[string][]string
	nonField  []string
	validated bool
	valid     bool
	saved     bool
}

// Validate checks every field and records messages for the ones that fail.
// It reports false for unbound forms. The error is reserved for lookups
// that could not be performed.
func (f *Registration) Validate(ctx context.Context) (bool, error) {
	f.cleaned = make(map[string]string, len(fieldOrder))
	f.errors = make(map[string][]string)
	f.nonField = nil
	f.validated = false
	f.valid = false
	if !f.bound {
		return false, nil
	}

	f.cleanUsername()
	f.cleanName(FieldFirstName)
	f.cleanName(FieldLastName)
	f.cleanEmail()
	f.cleanPasswords()

	if err := f.checkUnique(ctx); err != nil {
		return false, err
	}

	f.validated = true
	f.valid = len(f.errors) == 0 && len(f.nonField) == 0
	return f.valid, nil
}

func (f *Registration) cleanUsername() {
	v := strings.TrimSpace(f.data[FieldUsername])
	switch {
	case v == "":
		f.addError(FieldUsername, msgRequired)
	case textProblem(v) != "":
		f.addError(FieldUsername, textProblem(v))
	case tooLong(v, models.MaxUsernameLength):
		f.addError(FieldUsername, lengthMessage(v, models.MaxUsernameLength))
	case !usernamePattern.MatchString(v):
		f.addError(FieldUsername, msgInvalidUsername)
	default:
		f.cleaned[FieldUsername] = v
	}
}

func (f *Registration) cleanName(field string) {
	v := strings.TrimSpace(f.data[field])
	if msg := textProblem(v); msg != "" {
		f.addError(field, msg)
		return
	}
	if tooLong(v, models.MaxNameLength) {
		f.addError(field, lengthMessage(v, models.MaxNameLength))
		return
	}
	f.cleaned[field] = v
}

func (f *Registration) cleanEmail() {
	v := strings.TrimSpace(f.data[FieldEmail])
	switch {
	case v == "":
		f.addError(FieldEmail, msgRequired)
	case textProblem(v) != "":
		f.addError(FieldEmail, textProblem(v))
	case tooLong(v, models.MaxEmailLength):
		f.addError(FieldEmail, lengthMessage(v, models.MaxEmailLength))
	case !govalidator.IsEmail(v):
		f.addError(FieldEmail, msgInvalidEmail)
	default:
		f.cleaned[FieldEmail] = normalizeEmail(v)
	}
}

func (f *Registration) cleanPasswords() {
	pw1, pw2 := f.data[FieldPassword1], f.data[FieldPassword2]
	if pw1 == "" {
		f.addError(FieldPassword1, msgRequired)
	}
	if pw2 == "" {
		f.addError(FieldPassword2, msgRequired)
	}
	if pw1 == "" || pw2 == "" {
		return
	}
	bad := false
	for _, field := range []string{FieldPassword1, FieldPassword2} {
		if msg := textProblem(f.data[field]); msg != "" {
			f.addError(field, msg)
			bad = true
		}
	}
	if bad {
		return
	}
	if pw1 != pw2 {
		f.nonField = append(f.nonField, msgPasswordMismatch)
		return
	}
	attrs := password.Attributes{
		Username:  f.cleaned[FieldUsername],
		FirstName: f.cleaned[FieldFirstName],
		LastName:  f.cleaned[FieldLastName],
		Email:     f.cleaned[FieldEmail],
	}
	for _, problem := range f.builder.policy.Validate(pw1, attrs) {
		f.addError(FieldPassword1, problem)
	}
	if _, failed := f.errors[FieldPassword1]; !failed {
		f.cleaned[FieldPassword1] = pw1
	}
}

// checkUnique looks up only values that passed their field checks.
func (f *Registration) checkUnique(ctx context.Context) error {
	if username, ok := f.cleaned[FieldUsername]; ok {
		taken, err := exists(ctx, f.builder.store.FindByUsername, username)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check username")
		}
		if taken {
			f.addError(FieldUsername, msgUsernameTaken)
			delete(f.cleaned, FieldUsername)
		}
	}
	if email, ok := f.cleaned[FieldEmail]; ok {
		taken, err := exists(ctx, f.builder.store.FindByEmail, email)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check email")
		}
		if taken {
			f.addError(FieldEmail, msgEmailTaken)
			delete(f.cleaned, FieldEmail)
		}
	}
	return nil
}

func exists(ctx context.Context, find func(context.Context, string) (*models.User, error), key string) (bool, error) {
	_, err := find(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sentinel.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Save persists the validated submission and returns the new user. Calling
// it before a successful Validate is a programming error. A uniqueness
// conflict that slipped past Validate becomes a form error and a
// CodeConflict error.
func (f *Registration) Save(ctx context.Context) (*models.User, error) {
	if !f.validated || !f.valid {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "form must be validated before saving")
	}
	if f.saved {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "form was already saved")
	}

	ctx, span := tracer.Start(ctx, "form.Save")
	defer span.End()

	hash, err := f.builder.hasher.Hash(f.cleaned[FieldPassword1])
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "hash password")
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}

	user, err := models.NewUser(f.builder.newID(), models.NewUserParams{
		Username:     f.cleaned[FieldUsername],
		FirstName:    f.cleaned[FieldFirstName],
		LastName:     f.cleaned[FieldLastName],
		Email:        f.cleaned[FieldEmail],
		PasswordHash: hash,
	}, requestcontext.Now(ctx))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "build user")
		return nil, err
	}
	span.SetAttributes(attribute.String("user.id", user.ID.String()))

	if err := f.builder.store.Create(ctx, user); err != nil {
		switch {
		case errors.Is(err, models.ErrEmailTaken):
			f.rejectAtSave(msgEmailTaken)
		case errors.Is(err, models.ErrUsernameTaken):
			f.rejectAtSave(msgUsernameTaken)
		case errors.Is(err, sentinel.ErrAlreadyUsed):
			f.rejectAtSave("An account with these details already exists.")
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "create user")
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create user")
		}
		span.SetAttributes(attribute.Bool("signup.conflict", true))
		return nil, dErrors.Wrap(err, dErrors.CodeConflict, "user already exists")
	}
	f.saved = true
	return user, nil
}

func (f *Registration) rejectAtSave(msg string) {
	f.nonField = append(f.nonField, msg)
	f.valid = false
}

func (f *Registration) addError(field, msg string) {
	f.errors[field] = append(f.errors[field], msg)
}

// IsBound reports whether the form holds a submission.
func (f *Registration) IsBound() bool { return f.bound }

// Valid reports the outcome of the last Validate, including save conflicts.
func (f *Registration) Valid() bool { return f.validated && f.valid }

// Value returns the submitted value to redisplay. Passwords are never echoed.
func (f *Registration) Value(field string) string {
	if field == FieldPassword1 || field == FieldPassword2 {
		return ""
	}
	return strings.TrimSpace(f.data[field])
}

// Errors returns the messages recorded against field.
func (f *Registration) Errors(field string) []string {
	return f.errors[field]
}

// NonFieldErrors returns messages that concern the form as a whole.
func (f *Registration) NonFieldErrors() []string {
	return f.nonField
}

// HasErrors reports whether any message is recorded.
func (f *Registration) HasErrors() bool {
	return len(f.errors) > 0 || len(f.nonField) > 0
}

// textProblem reports why v cannot be stored as text, or "" when it can.
func textProblem(v string) string {
	switch {
	case strings.ContainsRune(v, 0):
		return msgNullCharacters
	case !utf8.ValidString(v):
		return msgInvalidText
	}
	return ""
}

func tooLong(v string, max int) bool {
	return !govalidator.StringLength(v, "0", strconv.Itoa(max))
}

func lengthMessage(v string, max int) string {
	return fmt.Sprintf("Ensure this value has at most %d characters (it has %d).", max, utf8.RuneCountInString(v))
}

// normalizeEmail lowercases the domain part and keeps the local part as
// typed.
func normalizeEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}
