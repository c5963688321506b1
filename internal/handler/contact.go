package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/contacts-api/internal/apperror"
	"github.com/sakif/contacts-api/internal/auth"
	"github.com/sakif/contacts-api/internal/model"
	"github.com/sakif/contacts-api/internal/service"
)

// Contacts is the contact service as seen by the HTTP layer.
type Contacts interface {
	Create(ctx context.Context, ownerID string, in service.ContactInput) (*model.Contact, error)
	Get(ctx context.Context, ownerID, id string) (*model.Contact, error)
	List(ctx context.Context, ownerID string, skip, limit int) ([]model.Contact, error)
	Search(ctx context.Context, ownerID, query string) ([]model.Contact, error)
	Update(ctx context.Context, ownerID, id string, in service.ContactInput) (*model.Contact, error)
	Delete(ctx context.Context, ownerID, id string) (*model.Contact, error)
	UpcomingBirthdays(ctx context.Context, ownerID string) ([]model.Contact, error)
}

// ContactHandler manages the authenticated user's address book.
// Every route runs behind RequireAuth; the owner is always the caller.
type ContactHandler struct {
	contacts Contacts
	logger   *slog.Logger
}

func NewContactHandler(contacts Contacts, logger *slog.Logger) *ContactHandler {
	return &ContactHandler{contacts: contacts, logger: logger}
}

// contactRequest is the body of create and update. Update replaces every
// field, so both share one shape.
type contactRequest struct {
	FirstName      string  `json:"first_name"      validate:"required,max=100"`
	LastName       string  `json:"last_name"       validate:"required,max=100"`
	Email          string  `json:"email"           validate:"required,email"`
	PhoneNumber    string  `json:"phone_number"    validate:"required,max=50"`
	Birthday       string  `json:"birthday"        validate:"required,datetime=2006-01-02"`
	AdditionalData *string `json:"additional_data"`
}

func (req contactRequest) input() (service.ContactInput, error) {
	birthday, err := time.Parse(model.DateLayout, req.Birthday)
	if err != nil {
		return service.ContactInput{}, apperror.ValidationFailed("birthday", "birthday must be YYYY-MM-DD")
	}
	return service.ContactInput{
		FirstName:      req.FirstName,
		LastName:       req.LastName,
		Email:          req.Email,
		PhoneNumber:    req.PhoneNumber,
		Birthday:       birthday,
		AdditionalData: req.AdditionalData,
	}, nil
}

// owner returns the caller's ID, answering 401 itself when there is none.
func owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeError(w, apperror.Unauthenticated())
		return "", false
	}
	return user.ID, true
}

func (h *ContactHandler) decode(w http.ResponseWriter, r *http.Request) (service.ContactInput, bool) {
	var req contactRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return service.ContactInput{}, false
	}
	in, err := req.input()
	if err != nil {
		writeError(w, err)
		return service.ContactInput{}, false
	}
	return in, true
}

// HandleCreate adds a contact.
//
// HTTP: POST /api/contacts/
func (h *ContactHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Create(r.Context(), ownerID, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contact)
}

// HandleList returns one page of contacts.
//
// HTTP: GET /api/contacts/?skip=0&limit=100
func (h *ContactHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	skip, err := queryInt(r, "skip")
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, err)
		return
	}

	contacts, err := h.contacts.List(r.Context(), ownerID, skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// queryInt reads an optional integer query parameter; absent means 0.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return n, nil
}

// HandleSearch matches contacts by name or email.
//
// HTTP: GET /api/contacts/search?query=jo
func (h *ContactHandler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	contacts, err := h.contacts.Search(r.Context(), ownerID, r.URL.Query().Get("query"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// HandleBirthdays lists contacts with a birthday in the coming week.
//
// HTTP: GET /api/contacts/birthdays
func (h *ContactHandler) HandleBirthdays(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	contacts, err := h.contacts.UpcomingBirthdays(r.Context(), ownerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contacts)
}

// HandleGetByID returns one contact.
//
// HTTP: GET /api/contacts/{id}
func (h *ContactHandler) HandleGetByID(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Get(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// HandleUpdate replaces a contact.
//
// HTTP: PUT /api/contacts/{id}
func (h *ContactHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}
	in, ok := h.decode(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Update(r.Context(), ownerID, chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contact)
}

// HandleDelete removes a contact and echoes it back.
//
// HTTP: DELETE /api/contacts/{id}
func (h *ContactHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ownerID, ok := owner(w, r)
	if !ok {
		return
	}

	contact, err := h.contacts.Delete(r.Context(), ownerID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	h.logger.Debug("contact removed", slog.String("id", contact.ID), slog.String("userID", ownerID))
	writeJSON(w, http.StatusOK, contact)
}
