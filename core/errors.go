package core

import "errors"

var (
	ErrNotConfigured = errors.New("required secret is not configured")
	ErrUnauthorized  = errors.New("invalid credentials")
	ErrInvalidToken  = errors.New("invalid token")
	ErrTokenExpired  = errors.New("token has expired")
	ErrBadRequest    = errors.New("bad request")
)
