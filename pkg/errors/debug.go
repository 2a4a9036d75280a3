package errors

import (
	"errors"
	"fmt"
)

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`
	Retryable  bool   `json:"retryable"`

	Chain []string `json:"chain,omitempty"`

	HTTPStatus int `json:"http_status,omitempty"`
}

// StatusDetails is attached to errors produced from backend responses.
type StatusDetails struct {
	Status   int    `json:"status"`
	Endpoint string `json:"endpoint"`
	Body     string `json:"body,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
		Code:       CodeOf(err),
		Retryable:  IsRetryable(err),
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
		if typed, ok := e.(*Error); ok && d.HTTPStatus == 0 {
			if details, ok := typed.Details().(StatusDetails); ok {
				d.HTTPStatus = details.Status
			}
		}
	}

	return d
}
