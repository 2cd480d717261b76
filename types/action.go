package types

import (
	"maps"
	"net/http"
)

// HTTPAction is the typed call a durable scheduler performs when a job becomes due.
type HTTPAction struct {
	Method      string            `json:"method"`
	URL         string            `json:"url"`
	Headers     map[string]string `json:"headers"`
	ContentType string            `json:"contentType"`
	Body        string            `json:"body"` // delivery envelope, see EncodeDeliveryBody
}

// NewPostAction builds a JSON POST to url.
func NewPostAction(url string, headers map[string]string, body string) HTTPAction {
	return HTTPAction{
		Method:      http.MethodPost,
		URL:         url,
		Headers:     headers,
		ContentType: ContentTypeJSON,
		Body:        body,
	}
}

// AllHeaders returns the action headers including the content type.
func (a HTTPAction) AllHeaders() map[string]string {
	headers := make(map[string]string, len(a.Headers)+1)
	for k, v := range a.Headers {
		headers[k] = v
	}
	if a.ContentType != "" {
		headers[ContentTypeHeader] = a.ContentType
	}
	return headers
}

// WithMetaCount returns a copy of a whose metadata header carries count. Recurring
// entries keep one action and advance the count on every firing.
func (a HTTPAction) WithMetaCount(count int) (HTTPAction, error) {
	meta := DecodeMeta(a.Headers[MetaHeader])
	meta.Count = count
	encoded, err := EncodeMeta(meta)
	if err != nil {
		return HTTPAction{}, err
	}
	headers := make(map[string]string, len(a.Headers)+1)
	maps.Copy(headers, a.Headers)
	headers[MetaHeader] = encoded
	a.Headers = headers
	return a, nil
}
