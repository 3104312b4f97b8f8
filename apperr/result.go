package apperr

// Result is the two-outcome value returned to presentation: either a value or
// a structured failure.
type Result[T any] struct {
	OK    bool     `json:"ok"`
	Value T        `json:"value,omitempty"`
	Error *Failure `json:"error,omitempty"`
}

type Failure struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

func Ok[T any](v T) Result[T] {
	return Result[T]{OK: true, Value: v}
}

func Fail[T any](err error) Result[T] {
	return Result[T]{Error: &Failure{Code: CodeOf(err), Message: Message(err)}}
}

// From builds a Result from the usual (value, error) pair.
func From[T any](v T, err error) Result[T] {
	if err != nil {
		r := Fail[T](err)
		r.Value = v
		return r
	}
	return Ok(v)
}
