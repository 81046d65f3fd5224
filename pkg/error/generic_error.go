package error

// GenericError is implemented by all typed API errors so handlers and the
// recovery middleware can map them to HTTP responses.
type GenericError interface {
	Error() string
	ErrCode() string
	StatusCode() int
}
