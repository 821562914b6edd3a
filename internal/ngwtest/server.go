// Package ngwtest runs an in-process NGW instance serving the feature
// changes API for tests.
package ngwtest

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/c0deZ3R0/ngw-sync-kit/schema"
)

// Layer is the versioned state of one fake resource.
type Layer struct {
	Epoch        int64
	Target       int64
	Tstamp       string
	GeometryType string
	SRSID        int64
	Fields       schema.Fields

	// Pages are the change records returned by consecutive fetch requests.
	// Continuation markers are added by the server.
	Pages [][]gin.H

	// VersioningDisabled makes the check endpoint answer FVersioningNotEnabled.
	VersioningDisabled bool

	// FailPage, when positive, makes that fetch page answer 500.
	FailPage int
}

// Server is a fake NGW instance.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	layers   map[int64]*Layer
	requests []string
}

// Option configures a Server.
type Option func(*gin.Engine)

// WithBasicAuth requires HTTP basic authentication on every route.
func WithBasicAuth(username, password string) Option {
	return func(r *gin.Engine) {
		r.Use(gin.BasicAuth(gin.Accounts{username: password}))
	}
}

// New starts a server that is closed when t finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	s := &Server{layers: make(map[int64]*Layer)}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(s.record)
	for _, opt := range opts {
		opt(r)
	}

	api := r.Group("/api/resource/:id/feature/changes")
	{
		api.GET("/check", s.check)
		api.GET("/fetch", s.fetch)
	}

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Server.Close)
	return s
}

// SetLayer installs or replaces a resource.
func (s *Server) SetLayer(resourceID int64, layer Layer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.layers[resourceID] = &layer
}

// Requests returns the request URIs received so far, in order.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// CountPath returns how many requests hit path.
func (s *Server) CountPath(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, uri := range s.requests {
		if u, _, _ := strings.Cut(uri, "?"); u == path {
			n++
		}
	}
	return n
}

func (s *Server) record(c *gin.Context) {
	s.mu.Lock()
	s.requests = append(s.requests, c.Request.URL.RequestURI())
	s.mu.Unlock()
	c.Next()
}

func (s *Server) layer(c *gin.Context) (int64, *Layer, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"exception": "nextgisweb.core.exception.ValidationError", "message": "invalid resource id"})
		return 0, nil, false
	}

	s.mu.Lock()
	layer, ok := s.layers[id]
	s.mu.Unlock()
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{
			"exception":   "nextgisweb.resource.exception.ResourceNotFound",
			"title":       "Resource not found",
			"message":     fmt.Sprintf("Resource with id = %d was not found.", id),
			"status_code": http.StatusNotFound,
		})
		return 0, nil, false
	}
	return id, layer, true
}

func (s *Server) check(c *gin.Context) {
	id, layer, ok := s.layer(c)
	if !ok {
		return
	}

	if layer.VersioningDisabled {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"exception":   "nextgisweb.feature_layer.versioning.FVersioningNotEnabled",
			"title":       "Versioning not enabled",
			"message":     "Feature versioning is not enabled for this layer.",
			"status_code": http.StatusUnprocessableEntity,
		})
		return
	}

	initial, _ := strconv.ParseInt(c.Query("initial"), 10, 64)
	epoch, _ := strconv.ParseInt(c.Query("epoch"), 10, 64)
	if epoch == layer.Epoch && initial == layer.Target {
		c.Data(http.StatusOK, "application/json", []byte("null"))
		return
	}

	fields := make([]gin.H, len(layer.Fields))
	for i, f := range layer.Fields {
		fields[i] = gin.H{
			"id":           f.ID,
			"keyname":      f.Keyname,
			"display_name": f.DisplayName,
			"datatype":     f.DataType,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"epoch":         layer.Epoch,
		"target":        layer.Target,
		"tstamp":        layer.Tstamp,
		"fetch":         s.pageURL(id, layer.Epoch, initial, layer.Target, 0),
		"geometry_type": layer.GeometryType,
		"srs":           gin.H{"id": layer.SRSID},
		"fields":        fields,
	})
}

func (s *Server) pageURL(id, epoch, initial, target int64, page int) string {
	return fmt.Sprintf("%s/api/resource/%d/feature/changes/fetch?epoch=%d&initial=%d&target=%d&page=%d",
		s.URL, id, epoch, initial, target, page)
}

func (s *Server) fetch(c *gin.Context) {
	id, layer, ok := s.layer(c)
	if !ok {
		return
	}

	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 || page >= max(len(layer.Pages), 1) {
		c.JSON(http.StatusBadRequest, gin.H{"exception": "nextgisweb.core.exception.ValidationError", "message": "invalid page"})
		return
	}
	if layer.FailPage == page+1 {
		c.JSON(http.StatusInternalServerError, gin.H{
			"exception":   "nextgisweb.core.exception.InternalError",
			"message":     "Internal server error",
			"status_code": http.StatusInternalServerError,
		})
		return
	}

	records := []gin.H{}
	if page < len(layer.Pages) {
		records = append(records, layer.Pages[page]...)
	}
	if page+1 < len(layer.Pages) {
		initial, _ := strconv.ParseInt(c.Query("initial"), 10, 64)
		records = append(records, gin.H{
			"action": "continue",
			"url":    s.pageURL(id, layer.Epoch, initial, layer.Target, page+1),
		})
	}
	c.JSON(http.StatusOK, records)
}
