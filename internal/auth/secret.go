package auth

import (
	"crypto/subtle"
	"net/http"
)

// SecretHeader is the header Telegram fills with the secret_token given to setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// VerifySecret compares the presented token with the configured one byte for byte.
// An empty configured secret disables the check.
func VerifySecret(configured, presented string) bool {
	if configured == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}

// RequireSecret rejects requests whose secret header does not match before the body is read.
func RequireSecret(configured string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !VerifySecret(configured, r.Header.Get(SecretHeader)) {
				http.Error(w, "Invalid webhook secret", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
