package web

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// authMiddleware admits requests carrying one of the passphrases, either as a bearer
// token or as the password of basic auth. No passphrases means no auth.
func authMiddleware(passphrases []string, next http.HandlerFunc) http.HandlerFunc {
	if len(passphrases) == 0 {
		return next
	}
	return func(w http.ResponseWriter, r *http.Request) {
		if !isValidPassphrase(credential(r), passphrases) {
			w.Header().Set("WWW-Authenticate", `Basic realm="quirrel"`)
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

func credential(r *http.Request) string {
	if _, password, ok := r.BasicAuth(); ok {
		return password
	}
	header := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(header, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

func isValidPassphrase(given string, passphrases []string) bool {
	if given == "" {
		return false
	}
	valid := false
	for _, p := range passphrases {
		if subtle.ConstantTimeCompare([]byte(given), []byte(p)) == 1 {
			valid = true
		}
	}
	return valid
}
