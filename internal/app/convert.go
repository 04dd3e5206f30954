package app

import (
	"github.com/example/certs/internal/ports/primary"
	"github.com/example/certs/internal/ports/secondary"
)

func recordToCertificate(r *secondary.CertificateRecord) *primary.Certificate {
	if r == nil {
		return nil
	}
	return &primary.Certificate{
		ID:           r.ID,
		UserID:       r.UserID,
		CourseKey:    r.CourseKey,
		Status:       r.Status,
		Mode:         r.Mode,
		Grade:        r.Grade,
		VerifyUUID:   r.VerifyUUID,
		DownloadUUID: r.DownloadUUID,
		DownloadURL:  r.DownloadURL,
		Name:         r.Name,
		ErrorReason:  r.ErrorReason,
		CreatedAt:    r.CreatedAt,
		ModifiedAt:   r.ModifiedAt,
	}
}

// preferredName is the name printed on a certificate: the profile's full
// name, or the username when the profile has none.
func preferredName(p *secondary.ProfileRecord) string {
	if p == nil {
		return ""
	}
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}
