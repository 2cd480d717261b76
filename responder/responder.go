// Package responder serves inbound deliveries: it authenticates the request, decrypts
// the body, runs the route handler and maps the outcome to a response.
package responder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/internal/metrics"
	"github.com/RezaEskandarii/quirrel/pgk/signature"
	"github.com/RezaEskandarii/quirrel/types"
	"github.com/rs/zerolog"
)

const (
	maxBodySize = 4 << 20

	bodyOK               = "OK"
	bodySignatureMissing = "Signature missing"
	bodySignatureInvalid = "Signature invalid"
	bodyDecryption       = "Decryption failed"

	// EnvVar selects production mode when set to "production".
	EnvVar = "QUIRREL_ENV"
)

// Handler receives the decrypted payload JSON of one delivery. Returning an error fails
// the delivery with a 500, which lets the scheduler apply the job's retry ladder.
type Handler func(ctx context.Context, payload string, meta types.JobMeta) error

// Decrypter opens stored bodies.
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

type Request struct {
	Body   []byte
	Header http.Header
}

type Response struct {
	Status int
	Body   string
	Header map[string]string
}

type Responder struct {
	route      string
	handler    Handler
	token      string
	production bool
	decrypter  Decrypter
	logger     zerolog.Logger
}

type Option func(*Responder)

// WithProduction turns signature verification on or off.
func WithProduction(production bool) Option {
	return func(r *Responder) {
		r.production = production
	}
}

// WithToken sets the secret signatures are checked against.
func WithToken(token string) Option {
	return func(r *Responder) {
		r.token = token
	}
}

// WithDecrypter sets how stored bodies are opened. Without one, bodies pass through.
func WithDecrypter(d Decrypter) Option {
	return func(r *Responder) {
		r.decrypter = d
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(r *Responder) {
		r.logger = logger
	}
}

// New builds the responder of route. Production mode defaults to the QUIRREL_ENV
// environment variable and can be overridden with WithProduction.
func New(route string, handler Handler, opts ...Option) (*Responder, error) {
	normalized, err := types.NormalizeRoute(route)
	if err != nil {
		return nil, err
	}
	if handler == nil {
		return nil, errors.New("responder: handler is required")
	}
	r := &Responder{
		route:      normalized,
		handler:    handler,
		production: os.Getenv(EnvVar) == "production",
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

func (r *Responder) Route() string {
	return r.route
}

// Respond handles one delivery. It never returns an error; every failure is a response.
func (r *Responder) Respond(ctx context.Context, req Request) Response {
	log := r.logger.With().Str("route", r.route).Logger()

	sig := req.Header.Get(types.SignatureHeader)
	if r.production && sig == "" {
		log.Warn().Msg("delivery rejected: signature missing")
		return r.reply(http.StatusUnauthorized, bodySignatureMissing)
	}

	stored, verified := r.storedBody(req.Body, sig)
	if r.production && !verified {
		log.Warn().Msg("delivery rejected: signature invalid")
		return r.reply(http.StatusUnauthorized, bodySignatureInvalid)
	}

	payload := stored
	if r.decrypter != nil {
		var err error
		payload, err = r.decrypter.Decrypt(stored)
		if err != nil {
			log.Error().Err(err).Msg("delivery failed: decryption")
			return r.reply(http.StatusInternalServerError, bodyDecryption)
		}
	}

	meta := types.DecodeMeta(req.Header.Get(types.MetaHeader))
	log = log.With().Str("id", meta.ID).Int("count", meta.Count).Logger()

	if err := r.handle(ctx, payload, meta); err != nil {
		log.Error().Err(err).Msg("delivery failed: handler error")
		return r.reply(http.StatusInternalServerError, err.Error())
	}

	log.Info().Msg("delivery handled")
	return r.reply(http.StatusOK, bodyOK)
}

// storedBody recovers the stored body from the wire, which carries it either raw or
// wrapped in a JSON string literal. When sig is set, the form whose bytes it covers wins.
func (r *Responder) storedBody(wire []byte, sig string) (string, bool) {
	raw := string(wire)
	unwrapped, wrapped := types.UnwrapDeliveryBody(wire)
	if sig != "" {
		if signature.Verify(raw, r.token, sig) {
			return raw, true
		}
		if wrapped && signature.Verify(unwrapped, r.token, sig) {
			return unwrapped, true
		}
	}
	if wrapped {
		return unwrapped, false
	}
	return raw, false
}

func (r *Responder) handle(ctx context.Context, payload string, meta types.JobMeta) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = &custom_errors.HandlerError{Route: r.route, Err: fmt.Errorf("panic: %v", p)}
		}
	}()
	if err := r.handler(ctx, payload, meta); err != nil {
		return &custom_errors.HandlerError{Route: r.route, Err: err}
	}
	return nil
}

func (r *Responder) reply(status int, body string) Response {
	metrics.Received.WithLabelValues(r.route, strconv.Itoa(status)).Inc()
	return Response{
		Status: status,
		Body:   body,
		Header: map[string]string{"content-type": "text/plain; charset=utf-8"},
	}
}

// ServeHTTP adapts Respond to net/http.
func (r *Responder) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(req.Body, maxBodySize))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	resp := r.Respond(req.Context(), Request{Body: body, Header: req.Header})
	for k, v := range resp.Header {
		w.Header().Set(k, v)
	}
	w.WriteHeader(resp.Status)
	_, _ = io.WriteString(w, resp.Body)
}
