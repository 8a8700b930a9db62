package rest

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dvloznov/ads-extractor/internal/ads"
)

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
	Details []struct {
		Type   string `json:"@type"`
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		RequestID string `json:"requestId"`
	} `json:"details"`
}

func (e *apiError) toPlatformError(httpStatus int) *ads.PlatformError {
	pe := &ads.PlatformError{
		HTTPStatus: httpStatus,
		Status:     e.Status,
		Message:    e.Message,
	}
	if pe.HTTPStatus == 0 {
		pe.HTTPStatus = e.Code
	}
	for _, d := range e.Details {
		if !strings.HasSuffix(d.Type, "GoogleAdsFailure") {
			continue
		}
		for _, fe := range d.Errors {
			pe.Details = append(pe.Details, fe.Message)
		}
		if d.RequestID != "" {
			pe.RequestID = d.RequestID
		}
	}
	return pe
}

// decodeError converts an unsuccessful response into a PlatformError when the
// body carries a structured status, otherwise into a TransportError.
func decodeError(statusCode int, body []byte) error {
	var envelope struct {
		Error *apiError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil && envelope.Error.Status != "" {
		return envelope.Error.toPlatformError(statusCode)
	}

	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = http.StatusText(statusCode)
	}
	return &ads.TransportError{StatusCode: statusCode, Message: msg}
}
