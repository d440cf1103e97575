package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crewchat/crewseal/messaging"
)

const maxRequestBody = 1 << 20

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBody)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// identityForCrew returns the authenticated identity, enforcing that its
// crew matches the one in the URL. A token for one crew is not a capability
// for another.
func (a *API) identityForCrew(w http.ResponseWriter, r *http.Request) (*messaging.Identity, bool) {
	id := identityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	if crewID := chi.URLParam(r, "crewID"); crewID != id.CrewID {
		a.audit.logFailure(AuditAuthFailure, r, "crew mismatch",
			slog.String("user_id", id.UserID),
			slog.String("crew_id", crewID))
		writeError(w, http.StatusForbidden, "token not valid for this crew")
		return nil, false
	}
	return id, true
}

// Initialize enrolls a user into crew encryption and issues the bearer
// token that names the resulting in-process identity.
func (a *API) Initialize(w http.ResponseWriter, r *http.Request) {
	crewID := chi.URLParam(r, "crewID")

	var req InitializeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := a.svc.Initialize(r.Context(), req.UserID, crewID)
	if err != nil {
		mapError(w, err)
		return
	}
	token, err := a.tokens.issue(id)
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditInitialized, r, id.UserID, id.CrewID,
		slog.Uint64("key_version", id.ActiveVersion()))
	writeJSON(w, http.StatusCreated, InitializeResponse{
		Token:      token,
		KeyVersion: id.ActiveVersion(),
		Algorithm:  id.Algorithm,
	})
}

// RotateKeys swaps in a fresh keypair for the authenticated identity.
func (a *API) RotateKeys(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identityForCrew(w, r)
	if !ok {
		return
	}
	if err := a.svc.RotateKeys(r.Context(), id); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditRotated, r, id.UserID, id.CrewID,
		slog.Uint64("key_version", id.ActiveVersion()))
	writeJSON(w, http.StatusOK, RotateResponse{KeyVersion: id.ActiveVersion()})
}

// Disable deletes the identity's key records and revokes its token.
func (a *API) Disable(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identityForCrew(w, r)
	if !ok {
		return
	}
	// An empty body is allowed; the reason then defaults to blank.
	var req DisableRequest
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := a.svc.Disable(r.Context(), id, req.Reason); err != nil {
		mapError(w, err)
		return
	}
	a.tokens.revoke(tokenFromContext(r.Context()))
	a.audit.logEvent(AuditDisabled, r, id.UserID, id.CrewID,
		slog.String("reason", req.Reason))
	w.WriteHeader(http.StatusNoContent)
}

// Status reports a user's encryption state. Public keys are public;
// no authentication is required.
func (a *API) Status(w http.ResponseWriter, r *http.Request) {
	crewID := chi.URLParam(r, "crewID")
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id query parameter")
		return
	}

	st, err := a.svc.Status(r.Context(), userID, crewID)
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusResponse{
		Initialized:   st.Initialized,
		ActiveVersion: st.ActiveVersion,
		Algorithm:     st.Algorithm,
		CreatedAt:     st.CreatedAt,
		RotationDue:   st.RotationDue,
	})
}

// EncryptMessage seals a message for the crew and returns the envelope.
func (a *API) EncryptMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identityForCrew(w, r)
	if !ok {
		return
	}

	var req EncryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := a.svc.EncryptMessage(r.Context(), id, messaging.EncryptRequest{
		MessageType: req.MessageType,
		Content:     req.Content,
		Recipients:  req.Recipients,
	})
	if err != nil {
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditEncrypted, r, id.UserID, id.CrewID,
		slog.String("message_id", msg.MessageID),
		slog.Int("recipients", len(msg.Keys)))
	writeJSON(w, http.StatusCreated, msg)
}

// DecryptMessage opens an envelope for the authenticated recipient.
func (a *API) DecryptMessage(w http.ResponseWriter, r *http.Request) {
	id, ok := a.identityForCrew(w, r)
	if !ok {
		return
	}

	var req DecryptRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var opts []messaging.DecryptOption
	if req.StepUpCode != "" {
		opts = append(opts, messaging.WithStepUpCode(req.StepUpCode))
	}
	pt, err := a.svc.DecryptMessage(r.Context(), id, req.Message, opts...)
	if err != nil {
		if errors.Is(err, messaging.ErrNotAuthorizedRecipient) || errors.Is(err, messaging.ErrMessageTampered) {
			a.audit.logFailure(AuditDecryptDenied, r, err.Error(),
				slog.String("user_id", id.UserID),
				slog.String("crew_id", id.CrewID))
		}
		mapError(w, err)
		return
	}

	a.audit.logEvent(AuditDecrypted, r, id.UserID, id.CrewID,
		slog.String("message_id", pt.MessageID))
	writeJSON(w, http.StatusOK, DecryptResponse{
		MessageID:   pt.MessageID,
		SenderID:    pt.SenderID,
		MessageType: pt.MessageType,
		CreatedAt:   pt.CreatedAt,
		Content:     pt.Content,
	})
}

// ListMembers returns the crew's membership roll.
func (a *API) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := a.members.Members(r.Context(), chi.URLParam(r, "crewID"))
	if err != nil {
		mapError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MembersResponse{Members: members})
}

// AddMember registers a user as a crew member.
func (a *API) AddMember(w http.ResponseWriter, r *http.Request) {
	crewID := chi.URLParam(r, "crewID")

	var req MemberRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}

	if err := a.members.AddMember(r.Context(), crewID, req.UserID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditMemberAdded, r, req.UserID, crewID)
	w.WriteHeader(http.StatusNoContent)
}

// RemoveMember removes a user from the crew roll. Their key records are
// untouched; messages already sent to them stay readable.
func (a *API) RemoveMember(w http.ResponseWriter, r *http.Request) {
	crewID := chi.URLParam(r, "crewID")
	userID := chi.URLParam(r, "userID")

	if err := a.members.RemoveMember(r.Context(), crewID, userID); err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditMemberRemoved, r, userID, crewID)
	w.WriteHeader(http.StatusNoContent)
}

// EnrollStepUp provisions a TOTP secret for the authenticated user.
func (a *API) EnrollStepUp(w http.ResponseWriter, r *http.Request) {
	if a.verifier == nil {
		writeError(w, http.StatusNotImplemented, "step-up verification not configured")
		return
	}
	id := identityFromContext(r.Context())
	if id == nil {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	secret, provURL, err := a.verifier.Enroll(id.UserID)
	if err != nil {
		mapError(w, err)
		return
	}
	a.audit.logEvent(AuditStepUpEnroll, r, id.UserID, id.CrewID)
	writeJSON(w, http.StatusOK, StepUpEnrollResponse{
		Secret:          secret,
		ProvisioningURL: provURL,
	})
}
