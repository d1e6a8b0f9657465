package router

import (
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/sandveil/sandveil/internal/domain/global"
	"github.com/sandveil/sandveil/internal/infrastructure/logging"
)

// Keys the router installs on the virtual global object.
const (
	KeyLocation = "location"
	KeyHistory  = "history"
)

// Router supplies one application's virtualized navigation state. It builds
// a location/history pair from the application URL and installs it on the
// virtual global object, keeping the real navigation state untouched.
type Router struct {
	history *History
	logger  *logging.Logger
}

// New creates a router collaborator for one application.
func New(logger *logging.Logger) *Router {
	if logger == nil {
		logger = logging.NewDefault()
	}
	return &Router{
		history: NewHistory(defaultHistoryLimit),
		logger:  logger,
	}
}

// History returns the virtual session history.
func (r *Router) History() *History {
	return r.history
}

// InitRouteState parses the application URL and installs the virtualized
// location/history pair on the virtual global object.
func (r *Router) InitRouteState(appName, rawURL string, virtual *global.Object) error {
	loc, err := ParseLocation(rawURL)
	if err != nil {
		return fmt.Errorf("invalid route for %s: %w", appName, err)
	}

	r.history.Replace(Entry{URL: rawURL})
	virtual.Set(KeyLocation, loc)
	virtual.Set(KeyHistory, r.history)

	r.logger.Debug("route state initialized",
		zap.String("app", appName),
		zap.String("url", rawURL),
	)
	return nil
}

// ClearRouteState removes the virtualized navigation properties and resets
// the history stack.
func (r *Router) ClearRouteState(appName, rawURL string, virtual *global.Object) error {
	virtual.Delete(KeyLocation)
	virtual.Delete(KeyHistory)
	r.history.Reset()

	r.logger.Debug("route state cleared", zap.String("app", appName))
	return nil
}

// Location is a parsed navigation target, shaped like the pieces hosted
// code expects on a location object.
type Location struct {
	Href     string `json:"href"`
	Protocol string `json:"protocol"`
	Host     string `json:"host"`
	Hostname string `json:"hostname"`
	Port     string `json:"port"`
	Pathname string `json:"pathname"`
	Search   string `json:"search"`
	Hash     string `json:"hash"`
}

// ParseLocation splits a URL into location fields.
func ParseLocation(rawURL string) (Location, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Location{}, err
	}
	if u.Scheme == "" || u.Host == "" {
		return Location{}, fmt.Errorf("route URL must be absolute: %q", rawURL)
	}

	loc := Location{
		Href:     u.String(),
		Protocol: u.Scheme + ":",
		Host:     u.Host,
		Hostname: u.Hostname(),
		Port:     u.Port(),
		Pathname: u.Path,
	}
	if loc.Pathname == "" {
		loc.Pathname = "/"
	}
	if u.RawQuery != "" {
		loc.Search = "?" + u.RawQuery
	}
	if u.Fragment != "" {
		loc.Hash = "#" + u.Fragment
	}
	return loc, nil
}
