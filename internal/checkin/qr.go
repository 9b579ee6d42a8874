package checkin

import (
	"errors"
	"net/url"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrBadQRPayload is returned when a scanned code carries no registration id.
var ErrBadQRPayload = errors.New("qr payload does not contain a registration id")

const qrScheme = "checkin:"

// ParseQRPayload extracts the registration id from a scanned ticket. Accepted forms:
// a bare uuid, "checkin:<uuid>", or a URL whose "registration" query parameter or
// last path segment is the uuid.
func ParseQRPayload(raw string) (uuid.UUID, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return uuid.Nil, ErrBadQRPayload
	}
	if id, err := uuid.Parse(s); err == nil && len(s) == 36 {
		return id, nil
	}
	if len(s) > len(qrScheme) && strings.EqualFold(s[:len(qrScheme)], qrScheme) {
		return parseStrict(s[len(qrScheme):])
	}

	u, err := url.Parse(s)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return uuid.Nil, ErrBadQRPayload
	}
	if v := u.Query().Get("registration"); v != "" {
		return parseStrict(v)
	}
	return parseStrict(path.Base(strings.TrimSuffix(u.Path, "/")))
}

// parseStrict accepts only the canonical 36-character form; uuid.Parse also takes
// urn and braced variants which never appear on our tickets.
func parseStrict(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, ErrBadQRPayload
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, ErrBadQRPayload
	}
	return id, nil
}

// QRPayload is the value encoded on a registration's ticket.
func QRPayload(registrationID uuid.UUID) string {
	return qrScheme + registrationID.String()
}
