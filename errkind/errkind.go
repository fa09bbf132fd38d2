/*
 * Copyright 2019 Tero Vierimaa
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package errkind classifies failures crossing a component boundary so the
// reducer can decide, without parsing strings, whether to retry, surface a
// toast, or treat a flow as fatal. Errors wrap with plain fmt.Errorf/%w
// and stay compatible with errors.Is/errors.As.
package errkind

import "fmt"

// Kind is a closed taxonomy of failure categories, not a type name.
type Kind int

const (
	// Network covers transport failures and timeouts. Retryable.
	Network Kind = iota
	// ApiStatus covers a non-2xx gateway response. Retryable if the status
	// is 5xx or otherwise transient.
	ApiStatus
	// CookieInvalid is not retryable; login returns to Anonymous.
	CookieInvalid
	// UrlUnavailable covers copyright/region/VIP restricted songs. Not
	// retryable for the same song; the reducer auto-advances.
	UrlUnavailable
	// Decode covers an unplayable audio stream.
	Decode
	// Io covers local disk failures: full cache disk, failed rename.
	Io
	// Serde covers a corrupt persisted file.
	Serde
	// Fatal means the process cannot continue: no data dir, no audio
	// output when required.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case ApiStatus:
		return "api_status"
	case CookieInvalid:
		return "cookie_invalid"
	case UrlUnavailable:
		return "url_unavailable"
	case Decode:
		return "decode"
	case Io:
		return "io"
	case Serde:
		return "serde"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Retryable reports whether the category is, in general, worth retrying.
// ApiStatus callers still need to check the concrete status code; this is
// the coarse default.
func (k Kind) Retryable() bool {
	switch k {
	case Network, ApiStatus, Decode:
		return true
	default:
		return false
	}
}

// Error wraps an underlying error with its Kind. The message stays
// human-readable for toasts; Kind drives reducer control flow.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New builds a kinded error.
func New(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}
