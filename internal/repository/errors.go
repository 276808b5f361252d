package repository

import "errors"

var (
	ErrNotFound        = errors.New("record not found")
	ErrDuplicate       = errors.New("duplicate record")
	ErrConditionFailed = errors.New("conditional update matched no rows")
	ErrSerialization   = errors.New("transaction serialization failure")
)
