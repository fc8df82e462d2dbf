package response

// Generic response envelope
type APIResponseCode int

const (
	APIResponseCodeOK         APIResponseCode = 0
	APIResponseCodeBadRequest APIResponseCode = 40000
	APIResponseCodeNotFound   APIResponseCode = 40400
	APIResponseCodeConflict   APIResponseCode = 40900
	APIResponseCodeError      APIResponseCode = 50000
	// APIResponseCodeRetry asks the caller (usually a processor webhook) to
	// redeliver later, e.g. after a lock acquisition timeout.
	APIResponseCodeRetry APIResponseCode = 50300
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:         "ok",
	APIResponseCodeBadRequest: "bad request",
	APIResponseCodeNotFound:   "not found",
	APIResponseCodeConflict:   "conflict",
	APIResponseCodeError:      "unexpected error",
	APIResponseCodeRetry:      "temporarily unavailable, retry later",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// ErrorMsg is ErrorT with a caller supplied message in place of the default.
func ErrorMsg(code APIResponseCode, msg string) *APIResponse[any] {
	if msg == "" {
		msg = codeToMsg[code]
	}
	return &APIResponse[any]{Code: code, Message: msg}
}

// HTTPStatus maps an envelope code to the HTTP status written with it.
func (c APIResponseCode) HTTPStatus() int {
	switch c {
	case APIResponseCodeOK:
		return 200
	case APIResponseCodeBadRequest:
		return 400
	case APIResponseCodeNotFound:
		return 404
	case APIResponseCodeConflict:
		return 409
	case APIResponseCodeRetry:
		return 503
	}
	return 500
}
