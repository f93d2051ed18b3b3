package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpHeader = "X-Admin-TOTP"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

// adminOnly requires a valid one-time code in the X-Admin-TOTP header when
// an admin secret is configured. Without a secret it is a no-op.
func (s *Server) adminOnly(next http.Handler) http.Handler {
	if s.cfg.AdminTOTPSecret == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		code := strings.TrimSpace(r.Header.Get(totpHeader))
		if code == "" {
			writeError(w, http.StatusUnauthorized, "admin code required")
			return
		}
		ok, err := totp.ValidateCustom(code, s.cfg.AdminTOTPSecret, s.now().UTC(), totpOpts)
		if err != nil || !ok {
			slog.Warn("admin code rejected", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeError(w, http.StatusForbidden, "invalid admin code")
			return
		}
		next.ServeHTTP(w, r)
	})
}

