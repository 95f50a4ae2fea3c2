// Package schema validates inbound requests before they reach the services.
package schema

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"sous-voice-service/internal/models"
)

var (
	ErrInvalidRequest = errors.New("schema: invalid request")
	ErrUnknownType    = errors.New("schema: unknown request type")
)

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a request model, returning an error wrapping ErrInvalidRequest.
func (v *Validator) Validate(req any) error {
	var err error
	switch r := req.(type) {
	case models.UploadRecipeRequest:
		err = validateIDs(r.RecipeID, r.UserID)
		if err == nil && strings.TrimSpace(r.Text) == "" {
			err = invalid("text must not be empty")
		}
	case *models.UploadRecipeRequest:
		return v.Validate(*r)
	case models.DeleteRecipeRequest:
		err = validateIDs(r.RecipeID, r.UserID)
	case *models.DeleteRecipeRequest:
		return v.Validate(*r)
	case models.ParseRecipeRequest:
		err = validateURL(r.URL)
	case *models.ParseRecipeRequest:
		return v.Validate(*r)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownType, req)
	}

	if err != nil {
		log.Debug().Err(err).Str("type", fmt.Sprintf("%T", req)).Msg("Request rejected")
	}
	return err
}

func validateIDs(recipeID, userID int) error {
	if recipeID <= 0 {
		return invalid("recipe_id must be a positive integer")
	}
	if userID <= 0 {
		return invalid("user_id must be a positive integer")
	}
	return nil
}

// ValidateURL checks that raw is an absolute http(s) URL.
func ValidateURL(raw string) error {
	return validateURL(raw)
}

func validateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return invalid("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return invalid("url is malformed")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return invalid("url must use http or https")
	}
	if u.Host == "" {
		return invalid("url must include a host")
	}
	return nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, msg)
}
