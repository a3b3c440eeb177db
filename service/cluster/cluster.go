package cluster

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Cluster identifies the network an explorer session is pointed at.
type Cluster int

const (
	MainnetBeta Cluster = iota
	Devnet
	Custom
)

// DefaultCluster is used when no cluster is selected.
const DefaultCluster = MainnetBeta

// Hardcoded fallback endpoints.
const (
	MainnetBetaURL = "https://roxchain.roxcustody.io"
	DevnetURL      = "https://roxchain-dev.roxcustody.io"

	// DefaultCustomURL is used when the custom cluster is selected without a URL.
	DefaultCustomURL = "http://localhost:8899"
)

// All lists the selectable clusters in display order.
var All = []Cluster{MainnetBeta, Devnet, Custom}

// ErrUnknownCluster is returned when a cluster slug cannot be parsed.
var ErrUnknownCluster = errors.New("unknown cluster")

// Slug returns the URL-safe identifier of the cluster.
func (c Cluster) Slug() string {
	switch c {
	case MainnetBeta:
		return "mainnet-beta"
	case Devnet:
		return "devnet"
	case Custom:
		return "custom"
	default:
		return fmt.Sprintf("cluster(%d)", int(c))
	}
}

// Name returns the human readable cluster name.
func (c Cluster) Name() string {
	switch c {
	case MainnetBeta:
		return "Mainnet Beta"
	case Devnet:
		return "Devnet"
	case Custom:
		return "Custom"
	default:
		return fmt.Sprintf("Cluster %d", int(c))
	}
}

func (c Cluster) String() string {
	return c.Slug()
}

// MarshalText encodes the cluster as its slug.
func (c Cluster) MarshalText() ([]byte, error) {
	return []byte(c.Slug()), nil
}

// UnmarshalText decodes a cluster slug.
func (c *Cluster) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Parse converts a slug into a Cluster. An empty string selects DefaultCluster.
func Parse(slug string) (Cluster, error) {
	switch strings.ToLower(strings.TrimSpace(slug)) {
	case "":
		return DefaultCluster, nil
	case "mainnet-beta", "mainnet":
		return MainnetBeta, nil
	case "devnet":
		return Devnet, nil
	case "custom":
		return Custom, nil
	default:
		return DefaultCluster, fmt.Errorf("%w: %q", ErrUnknownCluster, slug)
	}
}

// Status reports the health of the connection to a cluster's RPC node.
type Status int

const (
	Connected Status = iota
	Connecting
	Failure
)

func (s Status) String() string {
	switch s {
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	case Failure:
		return "failure"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status as its lowercase name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Context selects which set of override variables is consulted.
type Context int

const (
	// Server resolution uses the server-only variables.
	Server Context = iota
	// Client resolution uses the variables that are safe to expose to browsers.
	Client
)

// Env holds the optional RPC URL overrides. An empty field means absent.
type Env struct {
	PublicMainnetURL string
	PublicDevnetURL  string
	MainnetURL       string
	DevnetURL        string
}

// EnvFromOS reads the overrides from the process environment.
func EnvFromOS() Env {
	return Env{
		PublicMainnetURL: os.Getenv("PUBLIC_MAINNET_RPC_URL"),
		PublicDevnetURL:  os.Getenv("PUBLIC_DEVNET_RPC_URL"),
		MainnetURL:       os.Getenv("MAINNET_RPC_URL"),
		DevnetURL:        os.Getenv("DEVNET_RPC_URL"),
	}
}

func (e Env) override(ctx Context, c Cluster) string {
	switch {
	case ctx == Client && c == MainnetBeta:
		return e.PublicMainnetURL
	case ctx == Client && c == Devnet:
		return e.PublicDevnetURL
	case ctx == Server && c == MainnetBeta:
		return e.MainnetURL
	case ctx == Server && c == Devnet:
		return e.DevnetURL
	}
	return ""
}

// Resolver maps a cluster selection to a concrete RPC endpoint.
// It is a pure function of its Env and the arguments passed to URL.
type Resolver struct {
	env Env
}

// NewResolver creates a Resolver over the given overrides.
func NewResolver(env Env) *Resolver {
	return &Resolver{env: env}
}

// Env returns the overrides the resolver was built with.
func (r *Resolver) Env() Env {
	return r.env
}

// URL resolves the RPC endpoint for c. Overrides are returned as is; the
// hardcoded defaults go through the host rewrite. Custom returns customURL
// untouched.
func (r *Resolver) URL(ctx Context, c Cluster, customURL, hostname string) string {
	switch c {
	case MainnetBeta:
		if u := r.env.override(ctx, c); u != "" {
			return u
		}
		return rewriteHost(MainnetBetaURL, hostname)
	case Devnet:
		if u := r.env.override(ctx, c); u != "" {
			return u
		}
		return rewriteHost(DevnetURL, hostname)
	default:
		return customURL
	}
}

// ServerURL resolves an endpoint for server-side use. There is no browsing
// context on the server, so the host rewrite always applies.
func (r *Resolver) ServerURL(c Cluster, customURL string) string {
	return r.URL(Server, c, customURL, "")
}

// ClientURL resolves the endpoint a browser on hostname should use.
func (r *Resolver) ClientURL(c Cluster, customURL, hostname string) string {
	return r.URL(Client, c, customURL, hostname)
}

// rewriteHost points the default endpoints at the explorer-specific hosts
// unless the page is being served from localhost.
func rewriteHost(rpcURL, hostname string) string {
	if hostname == "localhost" {
		return rpcURL
	}
	return strings.Replace(rpcURL, "api", "explorer-api", 1)
}

// Selection is the cluster choice carried by a request.
type Selection struct {
	Cluster   Cluster `json:"cluster"`
	CustomURL string  `json:"custom_url,omitempty"`
}

// SelectionFromQuery reads the cluster and customUrl query parameters.
func SelectionFromQuery(q url.Values) (Selection, error) {
	c, err := Parse(q.Get("cluster"))
	if err != nil {
		return Selection{Cluster: DefaultCluster}, err
	}
	sel := Selection{Cluster: c}
	if c == Custom {
		sel.CustomURL = q.Get("customUrl")
		if sel.CustomURL == "" {
			sel.CustomURL = DefaultCustomURL
		}
		if _, err := url.ParseRequestURI(sel.CustomURL); err != nil {
			return Selection{Cluster: DefaultCluster}, fmt.Errorf("invalid custom url %q: %w", sel.CustomURL, err)
		}
	}
	return sel, nil
}

// Query returns the parameters needed to keep this selection on links.
// The default cluster needs none.
func (s Selection) Query() url.Values {
	q := url.Values{}
	if s.Cluster == DefaultCluster {
		return q
	}
	q.Set("cluster", s.Cluster.Slug())
	if s.Cluster == Custom {
		q.Set("customUrl", s.CustomURL)
	}
	return q
}

// Link appends the selection's query parameters to path.
func (s Selection) Link(path string) string {
	q := s.Query()
	if len(q) == 0 {
		return path
	}
	return path + "?" + q.Encode()
}

// CacheKey identifies the selection for caching. Custom endpoints are not
// stable identities, so they report ok=false.
func (s Selection) CacheKey() (key string, ok bool) {
	if s.Cluster == Custom {
		return "", false
	}
	return s.Cluster.Slug(), true
}
