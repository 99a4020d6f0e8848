package form

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin/binding"
)

const confirmationIntent = "connect_confirmation"

// Confirmation is the empty form a logged-in user submits to confirm that a
// provider account should be linked. Only the CSRF token is checked.
type Confirmation struct {
	Token  string            `form:"_token"`
	Errors map[string]string `form:"-"`
}

type ConfirmationHandler struct{}

func NewConfirmationHandler() *ConfirmationHandler {
	return &ConfirmationHandler{}
}

// Process returns accepted=true only for a POST carrying a valid token.
func (h *ConfirmationHandler) Process(ctx context.Context, r *http.Request, sess Session) (*Confirmation, bool, error) {
	f := &Confirmation{Errors: map[string]string{}}

	if r.Method == http.MethodPost {
		if err := binding.Form.Bind(r, f); err != nil {
			return nil, false, fmt.Errorf("confirmation form: %w", err)
		}
		if ValidCSRFToken(ctx, sess, confirmationIntent, f.Token) {
			return f, true, nil
		}
		f.Errors["_token"] = "The form has expired, please submit it again."
	}

	token, err := CSRFToken(ctx, sess, confirmationIntent)
	if err != nil {
		return nil, false, err
	}
	f.Token = token
	return f, false, nil
}
