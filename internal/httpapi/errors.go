package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"tasktrail.io/internal/audit"
	"tasktrail.io/internal/auth"
	"tasktrail.io/internal/obs"
	"tasktrail.io/internal/task"
)

type errorResponse struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	Reason     string `json:"reason,omitempty"`
	RequestID  string `json:"requestId,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	writeJSON(w, code, errorResponse{
		StatusCode: code,
		Message:    msg,
		Error:      http.StatusText(code),
		RequestID:  audit.RequestIDFromContext(r.Context()),
	})
}

// respondErr maps service errors onto status codes.
func respondErr(w http.ResponseWriter, r *http.Request, err error) {
	if reason, ok := auth.DenyReasonOf(err); ok {
		writeJSON(w, http.StatusForbidden, errorResponse{
			StatusCode: http.StatusForbidden,
			Message:    "Forbidden: " + reason.Message(),
			Error:      http.StatusText(http.StatusForbidden),
			Reason:     string(reason),
			RequestID:  audit.RequestIDFromContext(r.Context()),
		})
		return
	}
	switch {
	case errors.Is(err, task.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, task.ErrInvalidInput))
	case errors.Is(err, audit.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, audit.ErrInvalidInput))
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, detail(err, auth.ErrInvalidInput))
	case errors.Is(err, auth.ErrUnauthorized), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, r, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, "Forbidden")
	case errors.Is(err, task.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Task not found")
	case errors.Is(err, auth.ErrNotFound), errors.Is(err, audit.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "Not found")
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, "Conflict")
	default:
		obs.Logger().WithFields(logrus.Fields{
			"request_id": audit.RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		}).Error("request failed")
		writeError(w, r, http.StatusInternalServerError, "Internal server error")
	}
}

// detail returns the text following sentinel in err, or a generic message.
func detail(err, sentinel error) string {
	msg := err.Error()
	marker := sentinel.Error() + ": "
	if i := strings.Index(msg, marker); i >= 0 {
		return msg[i+len(marker):]
	}
	return "Bad request"
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
