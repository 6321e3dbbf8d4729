package types

// ErrValue represents a MOO error value: a fixed or custom error code, plus
// an optional human-readable message and an optional payload value (as
// raise() and the except-clause machinery both need to carry along).
type ErrValue struct {
	code       ErrorCode
	customName string // non-empty for user-defined symbolic error codes (E_MY_ERROR-style)
	message    string
	hasMessage bool
	value      Value
	hasValue   bool
}

// NewErr creates a new error value with the default message for its code.
func NewErr(code ErrorCode) ErrValue {
	return ErrValue{code: code}
}

// NewErrWithMessage creates an error value carrying an explicit message,
// as produced by raise(code, message) or a builtin that wants to override
// the default ErrorCode.Message() text.
func NewErrWithMessage(code ErrorCode, message string) ErrValue {
	return ErrValue{code: code, message: message, hasMessage: true}
}

// NewErrWithPayload creates an error value carrying a message and an
// arbitrary payload Var, as produced by raise(code, message, value).
func NewErrWithPayload(code ErrorCode, message string, value Value) ErrValue {
	return ErrValue{code: code, message: message, hasMessage: true, value: value, hasValue: true}
}

// NewCustomErr creates a user-defined symbolic error code (E_QUOTA-shaped
// but not in the fixed table), e.g. raised by a verb's `raise('E_MY_ERR)`.
// Custom codes report as E_TYPE for arithmetic/dispatch purposes but retain
// their own name for display.
func NewCustomErr(name string, message string) ErrValue {
	e := ErrValue{code: E_TYPE, customName: name}
	if message != "" {
		e.message = message
		e.hasMessage = true
	}
	return e
}

// String returns the MOO string representation
func (e ErrValue) String() string {
	if e.customName != "" {
		return e.customName
	}
	return e.code.String()
}

// Type returns the MOO type
func (e ErrValue) Type() TypeCode {
	return TYPE_ERR
}

// Truthy returns whether the value is truthy
// Errors are never truthy
func (e ErrValue) Truthy() bool {
	return false
}

// Equal compares two values for equality. Custom codes compare by name;
// fixed codes compare by code. Message and payload are not part of
// equality (matching LambdaMOO/ToastStunt, where two raises of the same
// code with different messages are still `==`).
func (e ErrValue) Equal(other Value) bool {
	o, ok := other.(ErrValue)
	if !ok {
		return false
	}
	if e.customName != "" || o.customName != "" {
		return e.customName == o.customName
	}
	return e.code == o.code
}

// Code returns the error code
func (e ErrValue) Code() ErrorCode {
	return e.code
}

// IsCustom reports whether this is a user-defined symbolic error code.
func (e ErrValue) IsCustom() bool {
	return e.customName != ""
}

// CustomName returns the symbolic name for a custom error code, or "".
func (e ErrValue) CustomName() string {
	return e.customName
}

// Message returns the human-readable message, falling back to the code's
// default message when none was explicitly supplied.
func (e ErrValue) Message() string {
	if e.hasMessage {
		return e.message
	}
	return e.code.Message()
}

// Payload returns the optional value carried by raise(code, message, value)
// and whether one was set.
func (e ErrValue) Payload() (Value, bool) {
	return e.value, e.hasValue
}
