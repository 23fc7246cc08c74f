package vault

import (
	"github.com/golang-jwt/jwt/v5"
)

// remote store API keys are JWTs whose "role" claim states the privilege
// level they were minted with
type keyClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// ClassifyKey inspects a secret key's structural claims without verifying
// its signature (the remote store holds the signing secret, not us). The
// classification is diagnostic only: resolution still succeeds with an anon
// key, because a wrong-privilege failure downstream is otherwise
// indistinguishable from "not configured".
func ClassifyKey(secretKey string) KeyClass {
	claims := &keyClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(secretKey, claims); err != nil {
		return KeyClassUnknown
	}
	switch claims.Role {
	case "service_role":
		return KeyClassElevated
	case "anon":
		return KeyClassAnon
	default:
		return KeyClassUnknown
	}
}
