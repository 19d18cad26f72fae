package apperrors

import "errors"

// ErrUnauthorized indicates a missing or invalid session.
var ErrUnauthorized = errors.New("unauthorized")

// ErrForbidden indicates the actor is authenticated but not allowed to perform the action.
var ErrForbidden = errors.New("forbidden")

// ErrNotFound indicates that a requested resource could not be found.
var ErrNotFound = errors.New("resource not found")

// ErrValidation indicates that input data failed validation checks.
var ErrValidation = errors.New("validation error")

// ErrDuplicate indicates that an attempt was made to create a resource that already exists.
var ErrDuplicate = errors.New("resource already exists")

// ErrLastAdmin indicates a mutation that would leave the system without any administrator.
var ErrLastAdmin = errors.New("at least one admin account must remain")

// ErrStorage indicates a file storage failure; the owning record is never committed after it.
var ErrStorage = errors.New("storage failure")
