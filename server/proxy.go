package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bh-premnath-git/bhadminui/transport"
)

const (
	defaultUpstreamTimeout = 30 * time.Second

	msgUnauthorized  = "Unauthorized"
	msgNoAPIURL      = "API URL is not configured"
	msgUnexpected    = "An unexpected error occurred."
	maxRequestBodyMB = 1
)

// bodyRewriter turns the console payload into what the backend expects.
type bodyRewriter func(json.RawMessage) (json.RawMessage, error)

// GenerateTokenHandler exchanges the caller's identity token for a backend
// access token. The caller's Authorization header is forwarded and the body
// is replaced by the configured service-account credential.
func (s *Server) GenerateTokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstream, header, ok := s.upstreamFor(w, r)
		if !ok {
			return
		}
		s.forward(w, r, upstream, header, RouteGenerateToken, transport.Request{
			Method: http.MethodPost,
			Path:   upstreamGenerateToken,
			Body:   s.config.GetServiceAccount(),
		})
	}
}

// ListHandler forwards a list request with its query string to
// {prefix}list/.
func (s *Server) ListHandler(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstream, header, ok := s.upstreamFor(w, r)
		if !ok {
			return
		}
		s.forward(w, r, upstream, header, prefix+"list/", transport.Request{
			Method: http.MethodGet,
			Path:   prefix + "list/",
			Query:  r.URL.Query(),
		})
	}
}

// CreateHandler forwards a create request to prefix, passing the body
// through rewrite when it is not nil.
func (s *Server) CreateHandler(prefix string, rewrite bodyRewriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstream, header, ok := s.upstreamFor(w, r)
		if !ok {
			return
		}
		body, err := readJSON(w, r)
		if err == nil && rewrite != nil {
			body, err = rewrite(body)
		}
		if err != nil {
			s.log.Err(err).Str("path", r.URL.Path).Msg("invalid request body")
			writeError(w, http.StatusInternalServerError, msgUnexpected)
			return
		}
		s.forward(w, r, upstream, header, prefix, transport.Request{
			Method: http.MethodPost,
			Path:   prefix,
			Body:   body,
		})
	}
}

// ItemHandler forwards GET, PATCH and DELETE on {prefix}{id}/.
func (s *Server) ItemHandler(prefix string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		upstream, header, ok := s.upstreamFor(w, r)
		if !ok {
			return
		}
		req := transport.Request{
			Method: r.Method,
			Path:   prefix + url.PathEscape(r.PathValue("id")) + "/",
		}
		if r.Method == http.MethodPatch {
			body, err := readJSON(w, r)
			if err != nil {
				s.log.Err(err).Str("path", r.URL.Path).Msg("invalid request body")
				writeError(w, http.StatusInternalServerError, msgUnexpected)
				return
			}
			req.Body = body
		}
		s.forward(w, r, upstream, header, prefix+"{id}/", req)
	}
}

func (s *Server) NotImplementedHandler(msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotImplemented, msg)
	}
}

// upstreamFor checks the request carries a credential and the backend is
// configured, writing the error response when it does not.
func (s *Server) upstreamFor(w http.ResponseWriter, r *http.Request) (*transport.Client, http.Header, bool) {
	authorization := r.Header.Get("Authorization")
	if authorization == "" {
		writeError(w, http.StatusUnauthorized, msgUnauthorized)
		return nil, nil, false
	}
	remote := s.config.GetRemoteAPIURL()
	if remote == "" {
		writeError(w, http.StatusInternalServerError, msgNoAPIURL)
		return nil, nil, false
	}
	client, err := transport.New(remote,
		transport.WithHTTPClient(s.upstream),
		transport.WithLogger(s.log),
	)
	if err != nil {
		s.log.Err(err).Str("remote", remote).Msg("invalid remote API URL")
		writeError(w, http.StatusInternalServerError, msgNoAPIURL)
		return nil, nil, false
	}
	header := http.Header{}
	header.Set("Authorization", authorization)
	return client, header, true
}

// forward performs req and relays the outcome. A 2xx body is passed through
// with 200, a non-2xx body is wrapped as {"error": body} with the upstream
// status, anything else is a 500.
func (s *Server) forward(w http.ResponseWriter, r *http.Request, upstream *transport.Client, header http.Header, route string, req transport.Request) {
	start := time.Now()
	data, err := upstream.Do(r.Context(), req, header)
	s.metrics.observeUpstream(route, start)

	var errResp *transport.ErrorResponse
	switch {
	case err == nil:
		data = bytes.TrimSpace(data)
		if len(data) == 0 {
			data = []byte("{}")
		}
		if !json.Valid(data) {
			s.log.Error().Str("path", req.Path).Msg("upstream returned invalid JSON")
			writeError(w, http.StatusInternalServerError, msgUnexpected)
			return
		}
		writeRaw(w, http.StatusOK, data)
	case errors.As(err, &errResp) && errResp.Status != 0:
		body := errResp.Data
		if len(body) == 0 {
			body = json.RawMessage("{}")
		}
		writeJSON(w, errResp.Status, map[string]json.RawMessage{"error": body})
	default:
		s.log.Err(err).Str("method", req.Method).Str("path", req.Path).Msg("upstream request failed")
		writeError(w, http.StatusInternalServerError, msgUnexpected)
	}
}

// wrapTenantTags rewrites bh_tags to {"data": bh_tags}.
func wrapTenantTags(body json.RawMessage) (json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tags, ok := fields["bh_tags"]
	if !ok {
		tags = json.RawMessage("null")
	}
	wrapped, err := json.Marshal(map[string]json.RawMessage{"data": tags})
	if err != nil {
		return nil, err
	}
	fields["bh_tags"] = wrapped
	return json.Marshal(fields)
}

func readJSON(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBodyMB<<20))
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, errors.New("request body is not valid JSON")
	}
	return json.RawMessage(data), nil
}

func writeRaw(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeRaw(w, http.StatusInternalServerError, []byte(`{"error":"`+msgUnexpected+`"}`))
		return
	}
	writeRaw(w, status, data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
