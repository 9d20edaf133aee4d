package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"github.com/PortNumber53/landing-api/internal/models"
)

const maxContactBody = 32 << 10

// ContactStore persists contact submissions for relay.
type ContactStore interface {
	CreateContactSubmission(ctx context.Context, sub *models.ContactSubmission) error
}

type contactPayload struct {
	Name    string  `json:"name"`
	Email   string  `json:"email"`
	Company *string `json:"company"`
	Message string  `json:"message"`
}

// Contact creates an HTTP handler that validates and stores a contact form
// submission. The relay worker forwards it to the form relay afterwards.
func Contact(store ContactStore) http.HandlerFunc {
	validate := newValidator()

	return func(w http.ResponseWriter, r *http.Request) {
		var payload contactPayload
		if err := json.NewDecoder(io.LimitReader(r.Body, maxContactBody)).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON payload")
			return
		}

		// The message is validated and stored as typed; its length rule counts every character.
		sub := models.ContactSubmission{
			Name:    strings.TrimSpace(payload.Name),
			Email:   strings.TrimSpace(payload.Email),
			Message: payload.Message,
		}
		if payload.Company != nil {
			if company := strings.TrimSpace(*payload.Company); company != "" {
				sub.Company = &company
			}
		}

		if fields := validateContact(validate, sub); fields != nil {
			writeJSON(w, http.StatusBadRequest, validationFailed(fields))
			return
		}

		if err := store.CreateContactSubmission(r.Context(), &sub); err != nil {
			log.Error().Err(err).Msg("failed to store contact submission")
			writeError(w, http.StatusInternalServerError, "failed to submit contact form")
			return
		}

		log.Info().Int64("submission_id", sub.ID).Msg("contact submission stored")
		writeJSON(w, http.StatusCreated, map[string]bool{"success": true})
	}
}

func validateContact(validate *validator.Validate, sub models.ContactSubmission) map[string]string {
	err := validate.Struct(sub)
	if err == nil {
		return nil
	}
	if fields := fieldErrors(err); fields != nil {
		return fields
	}
	return map[string]string{"_": err.Error()}
}
