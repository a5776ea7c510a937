package auth

import "crypto/subtle"

// AdminCredentials is the single shared operator identity pair.
type AdminCredentials struct {
	Email    string
	Password string
}

// Match compares both halves in constant time. An unconfigured pair never matches.
func (a AdminCredentials) Match(email, password string) bool {
	if a.Email == "" || a.Password == "" {
		return false
	}
	emailOK := subtle.ConstantTimeCompare([]byte(a.Email), []byte(email))
	passOK := subtle.ConstantTimeCompare([]byte(a.Password), []byte(password))
	return emailOK&passOK == 1
}
