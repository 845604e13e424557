package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// ErrNoEmptyString rejects empty secrets before hashing.
var ErrNoEmptyString = goerrors.New("la contraseña no puede estar vacía", goerrors.CategoryValidation)

// ErrMismatchedHashAndPassword is the internal verification failure. It is
// never surfaced to callers directly; login maps it to InvalidCredentials.
var ErrMismatchedHashAndPassword = goerrors.New("hash and password mismatch", goerrors.CategoryAuth)

// Unauthenticated builds the generic 401 returned when a bearer token is
// missing, malformed, or unknown. The internal reason stays out of the message.
func Unauthenticated() *goerrors.Error {
	return goerrors.New("No autenticado", goerrors.CategoryAuth).
		WithTextCode("UNAUTHENTICATED")
}

// InvalidCredentials builds the single generic credential failure returned for
// both unknown users and wrong passwords, so callers cannot enumerate accounts.
// The message matches the platform's localized contract.
func InvalidCredentials() *goerrors.Error {
	return goerrors.New("Las credenciales proporcionadas son incorrectas.", goerrors.CategoryValidation).
		WithTextCode("INVALID_CREDENTIALS").
		WithMetadata(map[string]any{
			"errors": map[string]any{
				"email": []string{"Las credenciales proporcionadas son incorrectas."},
			},
		})
}
