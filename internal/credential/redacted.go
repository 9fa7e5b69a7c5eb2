package credential

// RedactedToken wraps a sensitive token string to prevent accidental logging.
//
// The type implements fmt.Stringer and the marshal interfaces to return
// "[REDACTED]" instead of the actual value, so a token can never leak through
// log messages, error strings, or serialized API responses.
//
// Usage:
//
//	tok := credential.NewRedactedToken("secret-value")
//	fmt.Println(tok)      // prints: [REDACTED]
//	raw := tok.Value()    // returns: "secret-value"
type RedactedToken struct {
	value string
}

// NewRedactedToken creates a new RedactedToken wrapping the given value.
func NewRedactedToken(value string) RedactedToken {
	return RedactedToken{value: value}
}

// Value returns the actual token value. Use this only when the token needs
// to be sent on the wire (an Authorization header, a token-endpoint form
// field, a storage write). Never log the result.
func (t RedactedToken) Value() string {
	return t.value
}

// String implements fmt.Stringer, returning "[REDACTED]" to prevent
// accidental logging of the token value.
func (t RedactedToken) String() string {
	return "[REDACTED]"
}

// GoString implements fmt.GoStringer for %#v formatting, also returning
// "[REDACTED]".
func (t RedactedToken) GoString() string {
	return "credential.RedactedToken{[REDACTED]}"
}

// IsEmpty returns true if the token value is empty.
func (t RedactedToken) IsEmpty() bool {
	return t.value == ""
}

// MarshalText implements encoding.TextMarshaler, returning "[REDACTED]"
// to prevent accidental serialization of the token value.
func (t RedactedToken) MarshalText() ([]byte, error) {
	return []byte("[REDACTED]"), nil
}

// MarshalJSON implements json.Marshaler, returning "[REDACTED]"
// to prevent accidental JSON serialization of the token value.
func (t RedactedToken) MarshalJSON() ([]byte, error) {
	return []byte(`"[REDACTED]"`), nil
}
