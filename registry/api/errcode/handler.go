package errcode

import (
	"encoding/json"
	"net/http"
)

// ServeJSON attempts to serve the errcode in a JSON envelope. It marshals
// err and sets the content-type header to 'application/json'. It will handle
// ErrorCoder and Errors, and if necessary will create an envelope. Only the
// first error of an Errors list is rendered, matching the forge wire format
// of one error object per response.
func ServeJSON(w http.ResponseWriter, err error) error {
	w.Header().Set("Content-Type", "application/json")

	sc := http.StatusInternalServerError
	var body error = ErrorCodeUnknown.WithDetail(nil)

	switch errs := err.(type) {
	case Errors:
		if len(errs) < 1 {
			break
		}
		body = envelope(errs[0])
		if coder, ok := errs[0].(ErrorCoder); ok {
			sc = coder.ErrorCode().Descriptor().HTTPStatusCode
		}
	case ErrorCoder:
		body = envelope(err)
		sc = errs.ErrorCode().Descriptor().HTTPStatusCode
	default:
		body = ErrorCodeUnknown.WithMessage(err.Error())
	}

	if sc == 0 {
		sc = http.StatusInternalServerError
	}

	w.WriteHeader(sc)

	return json.NewEncoder(w).Encode(body)
}

// envelope normalizes any ErrorCoder into a serializable Error value.
func envelope(err error) error {
	switch v := err.(type) {
	case Error:
		return v
	case ErrorCode:
		return v.WithDetail(nil)
	case ErrorCoder:
		return v.ErrorCode().WithMessage(err.Error())
	}
	return err
}
