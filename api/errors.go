package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/crewchat/crewseal/directory"
	"github.com/crewchat/crewseal/envelope"
	"github.com/crewchat/crewseal/keystore"
	"github.com/crewchat/crewseal/messaging"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func mapError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, messaging.ErrTooManyRequests):
		w.Header().Set("Retry-After", "60")
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, messaging.ErrNotAuthorizedRecipient):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, messaging.ErrStepUpRequired),
		errors.Is(err, messaging.ErrInvalidStepUpCode):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, messaging.ErrAlreadyInitialized),
		errors.Is(err, messaging.ErrNotInitialized),
		errors.Is(err, messaging.ErrRotationConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, messaging.ErrKeyVersionExpired):
		writeError(w, http.StatusGone, err.Error())
	case errors.Is(err, messaging.ErrNoRecipientsFound),
		errors.Is(err, messaging.ErrNoExistingKeys),
		errors.Is(err, keystore.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, messaging.ErrNoValidRecipientKeys),
		errors.Is(err, messaging.ErrInvalidInput),
		errors.Is(err, envelope.ErrInvalidEnvelope):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, messaging.ErrMessageTampered),
		errors.Is(err, messaging.ErrUnwrapFailed):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, keystore.ErrDirectoryUnavailable),
		errors.Is(err, directory.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
