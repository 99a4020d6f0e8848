package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"oauth-connect/internal/account"
	"oauth-connect/internal/auth"
	"oauth-connect/internal/auth/credentials"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

const registrationIntent = "registration"

// Registration is the form a visitor fills in to create a local account for
// a provider identity that is not linked yet.
type Registration struct {
	Username string `form:"username" binding:"required,min=3,max=64,alphanum"`
	Email    string `form:"email" binding:"required,email"`
	Password string `form:"password" binding:"required,min=8"`
	Token    string `form:"_token"`

	Errors map[string]string `form:"-"`
	User   *account.User     `form:"-"`
}

// RegistrationHandler binds, validates and, when valid, creates the account.
type RegistrationHandler struct {
	users account.Store
}

func NewRegistrationHandler(users account.Store) *RegistrationHandler {
	return &RegistrationHandler{users: users}
}

// Process prefills the form from info on GET. On POST it returns
// accepted=true with f.User set once the account has been created.
func (h *RegistrationHandler) Process(
	ctx context.Context,
	r *http.Request,
	sess Session,
	info *auth.UserInformation,
) (*Registration, bool, error) {

	f := &Registration{Errors: map[string]string{}}

	if r.Method != http.MethodPost {
		if info != nil {
			f.Username = info.Nickname
			f.Email = info.Email
		}
		return f, false, h.issueToken(ctx, sess, f)
	}

	if err := binding.Form.Bind(r, f); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return nil, false, fmt.Errorf("registration form: %w", err)
		}
		for _, fe := range verrs {
			f.Errors[strings.ToLower(fe.Field())] = fieldMessage(fe)
		}
	}

	if !ValidCSRFToken(ctx, sess, registrationIntent, f.Token) {
		f.Errors["_token"] = "The form has expired, please submit it again."
	}

	if len(f.Errors) == 0 {
		existing, err := h.users.ByUsername(ctx, f.Username)
		switch {
		case err == nil && existing != nil:
			f.Errors["username"] = "This username is already taken."
		case err != nil && !errors.Is(err, account.ErrNotFound):
			return nil, false, err
		}
	}

	if len(f.Errors) > 0 {
		f.Password = ""
		return f, false, h.issueToken(ctx, sess, f)
	}

	hash, version, err := credentials.HashPassword(f.Password)
	if err != nil {
		return nil, false, err
	}
	f.Password = ""

	user := &account.User{
		Username:      f.Username,
		Email:         f.Email,
		EmailVerified: info != nil && info.EmailVerified && strings.EqualFold(info.Email, f.Email),
		PasswordHash:  hash,
		HashVersion:   version,
		Roles:         []string{account.RoleUser},
		Status:        account.StatusActive,
	}

	if err := h.users.Create(ctx, user); err != nil {
		if errors.Is(err, account.ErrUsernameTaken) {
			f.Errors["username"] = "This username is already taken."
			return f, false, h.issueToken(ctx, sess, f)
		}
		return nil, false, err
	}

	f.User = user
	return f, true, nil
}

func (h *RegistrationHandler) issueToken(ctx context.Context, sess Session, f *Registration) error {
	token, err := CSRFToken(ctx, sess, registrationIntent)
	if err != nil {
		return err
	}
	f.Token = token
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This value should not be blank."
	case "email":
		return "This value is not a valid email address."
	case "min":
		return fmt.Sprintf("This value is too short. It should have %s characters or more.", fe.Param())
	case "max":
		return fmt.Sprintf("This value is too long. It should have %s characters or less.", fe.Param())
	case "alphanum":
		return "This value may only contain letters and digits."
	default:
		return "This value is not valid."
	}
}
