package codeobj

import (
	"github.com/pkg/errors"
)

var (
	ErrCodeObjectExists   = errors.New("code object already registered")
	ErrCodeObjectNotFound = errors.New("code object not found")
	ErrDuplicateAddress   = errors.New("duplicate instruction address")
	ErrAddressNotMapped   = errors.New("address not mapped to any instruction")
)
