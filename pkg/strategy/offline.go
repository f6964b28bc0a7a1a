package strategy

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
)

// apiEnvelope mirrors the response envelope of the upstream content APIs,
// so page code that parses real API responses degrades gracefully instead
// of crashing on an unexpected shape.
type apiEnvelope struct {
	Code   int    `json:"code"`
	Status string `json:"status"`
	Data   string `json:"data"`
}

// offlineAPIResponse builds the synthetic 503 JSON response returned when
// an API request can be served from neither network nor cache.
func offlineAPIResponse(message string) *http.Response {
	body, _ := json.Marshal(apiEnvelope{
		Code:   http.StatusServiceUnavailable,
		Status: "Offline",
		Data:   message,
	})
	return syntheticResponse(body, "application/json")
}

// offlineAssetResponse builds the synthetic 503 plain-text response
// returned for failed static assets.
func offlineAssetResponse() *http.Response {
	return syntheticResponse([]byte("Offline"), "text/plain; charset=utf-8")
}

func syntheticResponse(body []byte, contentType string) *http.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	return &http.Response{
		Status:        http.StatusText(http.StatusServiceUnavailable),
		StatusCode:    http.StatusServiceUnavailable,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
	}
}
