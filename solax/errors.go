package solax

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration matches every *ConfigurationError.
	ErrConfiguration = errors.New("catalog configuration error")
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("write validation error")
)

// ConfigurationError はカタログ構築時の致命的なエラーです。
// これが返された場合、統合を開始してはいけません。
type ConfigurationError struct {
	Subset string // 問題を検出したサブセット (空のこともある)
	Key    string
	Err    error
}

func (e *ConfigurationError) Error() string {
	switch {
	case e.Subset != "" && e.Key != "":
		return fmt.Sprintf("catalog subset %s, key %s: %v", e.Subset, e.Key, e.Err)
	case e.Subset != "":
		return fmt.Sprintf("catalog subset %s: %v", e.Subset, e.Err)
	case e.Key != "":
		return fmt.Sprintf("catalog key %s: %v", e.Key, e.Err)
	}
	return fmt.Sprintf("catalog: %v", e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// ValidationError is returned by the encode path; nothing must be written.
type ValidationError struct {
	Key    string
	Value  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("cannot write %s: %s", e.Key, e.Reason)
	}
	return fmt.Sprintf("cannot write %s=%s: %s", e.Key, e.Value, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func validationErrorf(key, value, format string, args ...any) error {
	return &ValidationError{Key: key, Value: value, Reason: fmt.Sprintf(format, args...)}
}
