package errors

import (
	"errors"
	"strings"
)

// The messages of these errors are part of the wire contract: callers in
// other processes match on them.
var (
	ErrServerUnreachable   = errors.New("ERR_SERVER_UNREACHABLE")
	ErrNetworkDisconnected = errors.New("ERR_NETWORK_DISCONNECTED")
	ErrNetwork             = errors.New("Network Error")
)

// Login failures.
var (
	ErrUnknownUser     = errors.New("ERR_UNKNOWN_USER")
	ErrInvalidPassword = errors.New("ERR_INVALID_PASSWORD")
)

// Kind is the coarse cause of a failed request.
type Kind int

const (
	KindGeneric Kind = iota
	KindOffline
	KindUnreachable
)

func (k Kind) String() string {
	switch k {
	case KindOffline:
		return "offline"
	case KindUnreachable:
		return "unreachable"
	default:
		return "generic"
	}
}

// Messages are the user facing strings ParseError picks from.
type Messages struct {
	ActionText    string `json:"action_text"`
	GenericError  string `json:"generic_error"`
	UsernameError string `json:"username_error"`
	PasswordError string `json:"password_error"`
	NetworkError  string `json:"network_error"`
	ServerError   string `json:"server_error"`
}

var DefaultMessages = Messages{
	ActionText:    "Login",
	GenericError:  "Something went wrong, please try again.",
	UsernameError: "Username does not exist.",
	PasswordError: "Password is invalid.",
	NetworkError:  "There is an issue with your network connection. Please try again.",
	ServerError:   "There is an issue with the server please try again.",
}

// Friendly is a classified error ready to show to a user.
type Friendly struct {
	ErrorMessage  string `json:"error_message"`
	IsRecoverable bool   `json:"is_recoverable"`
}

// Classify maps err onto the taxonomy by its message, so errors that
// crossed a process boundary as plain text classify the same way.
func Classify(err error) Kind {
	if err == nil {
		return KindGeneric
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, ErrServerUnreachable.Error()):
		return KindUnreachable
	case strings.Contains(msg, ErrNetworkDisconnected.Error()),
		strings.Contains(msg, ErrNetwork.Error()):
		return KindOffline
	default:
		return KindGeneric
	}
}

// ParseError turns err into a message from messages. Unreachable and
// offline errors are not recoverable by retrying; everything else is.
func ParseError(err error, messages Messages) Friendly {
	messages = withDefaults(messages)

	switch Classify(err) {
	case KindUnreachable:
		return Friendly{ErrorMessage: messages.ServerError, IsRecoverable: false}
	case KindOffline:
		return Friendly{ErrorMessage: messages.NetworkError, IsRecoverable: false}
	default:
		return Friendly{ErrorMessage: messages.GenericError, IsRecoverable: true}
	}
}

func withDefaults(m Messages) Messages {
	if m.ActionText == "" {
		m.ActionText = DefaultMessages.ActionText
	}
	if m.GenericError == "" {
		m.GenericError = DefaultMessages.GenericError
	}
	if m.UsernameError == "" {
		m.UsernameError = DefaultMessages.UsernameError
	}
	if m.PasswordError == "" {
		m.PasswordError = DefaultMessages.PasswordError
	}
	if m.NetworkError == "" {
		m.NetworkError = DefaultMessages.NetworkError
	}
	if m.ServerError == "" {
		m.ServerError = DefaultMessages.ServerError
	}
	return m
}

// ParseLoginError is ParseError for the login flow: unknown users and bad
// passwords get their own recoverable messages.
func ParseLoginError(err error, messages Messages) Friendly {
	messages = withDefaults(messages)

	switch {
	case errors.Is(err, ErrUnknownUser):
		return Friendly{ErrorMessage: messages.UsernameError, IsRecoverable: true}
	case errors.Is(err, ErrInvalidPassword):
		return Friendly{ErrorMessage: messages.PasswordError, IsRecoverable: true}
	default:
		return ParseError(err, messages)
	}
}
