package repodata

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"

	"github.com/nebari-dev/rattler-go/internal/rerrors"
)

// FetchRequest is one conditional GET against a transport.
type FetchRequest struct {
	URL             string
	IfNoneMatch     string
	IfModifiedSince string
}

// FetchResponse is a transport's response to a FetchRequest. NotModified
// is set when the transport determined the cached copy is still valid
// (HTTP 304); Body is nil in that case.
type FetchResponse struct {
	StatusCode      int
	Body            io.ReadCloser
	ETag            string
	LastModified    string
	ContentEncoding string
	NotModified     bool
}

// Transport fetches bytes for a single URL scheme.
type Transport interface {
	Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error)
}

// Router dispatches a fetch to the transport registered for the URL's
// scheme, applying the mirror map first (spec §4.F: "mirror mapping
// applied before transport selection").
type Router struct {
	Mirrors    MirrorMap
	transports map[string]Transport
}

// NewRouter builds a Router with the default transport set: http(s),
// file, oci, and s3.
func NewRouter(mirrors MirrorMap) *Router {
	r := &Router{
		Mirrors:    mirrors,
		transports: make(map[string]Transport),
	}
	httpT := &HTTPTransport{Client: http.DefaultClient}
	r.transports["http"] = httpT
	r.transports["https"] = httpT
	r.transports["file"] = &FileTransport{}
	r.transports["oci"] = NewOCITransport()
	r.transports["s3"] = NewS3Transport()
	return r
}

// Register overrides or adds a transport for a scheme (primarily for
// tests).
func (r *Router) Register(scheme string, t Transport) {
	r.transports[scheme] = t
}

// Fetch mirrors req.URL, selects a transport by scheme, and fetches.
func (r *Router) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	resolved := req.URL
	if r.Mirrors != nil {
		resolved = r.Mirrors.Resolve(resolved)
	}
	u, err := url.Parse(resolved)
	if err != nil {
		return nil, rerrors.New(rerrors.KindInvalidPath, "repodata.Router.Fetch", err).WithURL(resolved)
	}
	t, ok := r.transports[u.Scheme]
	if !ok {
		return nil, rerrors.New(rerrors.KindUnsupportedScheme, "repodata.Router.Fetch", nil).WithURL(resolved)
	}
	req.URL = resolved
	return t.Fetch(ctx, req)
}

// HTTPTransport serves http:// and https:// URLs with conditional
// requests and transparent Content-Encoding decoding.
type HTTPTransport struct {
	Client *http.Client
}

func (t *HTTPTransport) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, err
	}
	if req.IfNoneMatch != "" {
		httpReq.Header.Set("If-None-Match", req.IfNoneMatch)
	}
	if req.IfModifiedSince != "" {
		httpReq.Header.Set("If-Modified-Since", req.IfModifiedSince)
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, rerrors.New(rerrors.KindFetchTransient, "repodata.HTTPTransport.Fetch", err).WithURL(req.URL)
	}

	if resp.StatusCode == http.StatusNotModified {
		resp.Body.Close()
		return &FetchResponse{StatusCode: resp.StatusCode, NotModified: true}, nil
	}

	return &FetchResponse{
		StatusCode:      resp.StatusCode,
		Body:            resp.Body,
		ETag:            resp.Header.Get("ETag"),
		LastModified:    resp.Header.Get("Last-Modified"),
		ContentEncoding: resp.Header.Get("Content-Encoding"),
	}, nil
}

// FileTransport serves file:// URLs, parsed identically across host
// OSes (spec §4.F: "never rely on host-OS path semantics").
type FileTransport struct{}

func (t *FileTransport) Fetch(ctx context.Context, req FetchRequest) (*FetchResponse, error) {
	path, err := filePathFromURL(req.URL)
	if err != nil {
		return nil, rerrors.New(rerrors.KindInvalidPath, "repodata.FileTransport.Fetch", err).WithURL(req.URL)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &FetchResponse{StatusCode: http.StatusNotFound}, nil
		}
		return nil, rerrors.New(rerrors.KindFetchPermanent, "repodata.FileTransport.Fetch", err).WithURL(req.URL)
	}
	return &FetchResponse{StatusCode: http.StatusOK, Body: f}, nil
}

// filePathFromURL extracts a filesystem path from a file:// URL using
// net/url's parser rather than any OS-specific path library, so the
// result is identical on every host OS.
func filePathFromURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme != "file" {
		return "", rerrors.New(rerrors.KindUnsupportedScheme, "repodata.filePathFromURL", nil).WithURL(raw)
	}
	p := u.Path
	if u.Host != "" && u.Host != "localhost" {
		p = "/" + u.Host + p
	}
	return p, nil
}
