// Package api carries both HTTP surfaces of a node: the public gateway
// users talk to, and the internal endpoint peers call. Both are thin: they
// decode payloads, delegate to the catalog or the executor, and map error
// kinds onto status codes.
package api

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/catalog"
	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/index"
	"github.com/Jason-Cooke/Toshi/internal/query"
	"github.com/Jason-Cooke/Toshi/internal/search"
)

// summaryTTL bounds how stale a cached summary may get. A flush invalidates
// the entry early.
const summaryTTL = 30 * time.Second

// Handler holds the dependencies injected from main.
type Handler struct {
	catalog   *catalog.Catalog
	executor  *search.Executor
	log       *zap.Logger
	summaries *gocache.Cache
}

// NewHandler creates a Handler over the given catalog and executor.
func NewHandler(cat *catalog.Catalog, exec *search.Executor, log *zap.Logger) *Handler {
	return &Handler{
		catalog:   cat,
		executor:  exec,
		log:       log,
		summaries: gocache.New(summaryTTL, time.Minute),
	}
}

// Register mounts the public routes. Search is the default verb: a bare
// index path searches, the underscore verbs address the write path.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/", h.ListIndexes)
	r.POST("/:index", h.Search)
	r.GET("/:index", h.AllDocs)
	r.PUT("/:index", h.CreateIndex)
	r.DELETE("/:index", h.DeleteTerms)
	r.POST("/:index/_add", h.AddDocument)
	r.GET("/:index/_summary", h.Summary)
	r.POST("/:index/_flush", h.Flush)
	r.NoRoute(h.UnknownRoute)
}

// ListIndexes handles GET /.
func (h *Handler) ListIndexes(c *gin.Context) {
	c.JSON(http.StatusOK, cluster.ListReply{Indexes: h.catalog.List()})
}

// Search handles POST /:index. The body is a Search request; an empty body
// searches all documents.
func (h *Handler) Search(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortErr(c, errs.Wrap(errs.QueryParse, err, "could not read request body"))
		return
	}
	req, err := query.DecodeSearch(body)
	if err != nil {
		abortErr(c, err)
		return
	}
	h.runSearch(c, req)
}

// AllDocs handles GET /:index.
func (h *Handler) AllDocs(c *gin.Context) {
	h.runSearch(c, query.AllDocs())
}

func (h *Handler) runSearch(c *gin.Context, req query.Search) {
	results, err := h.executor.Search(c.Request.Context(), c.Param("index"), req)
	if err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, results)
}

// CreateIndex handles PUT /:index with a {schema: ...} body.
func (h *Handler) CreateIndex(c *gin.Context) {
	var req cluster.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortErr(c, errs.Wrap(errs.QueryParse, err, "invalid schema in request"))
		return
	}
	name := c.Param("index")
	if _, err := h.catalog.CreateFromManaged(name, req.Schema); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.ResultReply{Code: cluster.CodeOK, Message: "created index " + name})
}

// AddDocument handles POST /:index/_add. Writes are never federated; the
// index must be local.
func (h *Handler) AddDocument(c *gin.Context) {
	var doc index.AddDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		abortErr(c, errs.Wrap(errs.QueryParse, err, "invalid document request"))
		return
	}
	handle, err := h.catalog.GetLocal(c.Param("index"))
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := handle.AddDocument(doc); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.ResultReply{Code: cluster.CodeOK, Message: "document added"})
}

// DeleteTerms handles DELETE /:index with a {terms: ...} body.
func (h *Handler) DeleteTerms(c *gin.Context) {
	var del index.DeleteDoc
	if err := c.ShouldBindJSON(&del); err != nil {
		abortErr(c, errs.Wrap(errs.QueryParse, err, "invalid delete request"))
		return
	}
	handle, err := h.catalog.GetLocal(c.Param("index"))
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := handle.DeleteByTerms(c.Request.Context(), del); err != nil {
		abortErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.ResultReply{Code: cluster.CodeOK, Message: "documents deleted"})
}

// SummaryResponse is the body of GET /:index/_summary.
type SummaryResponse struct {
	Summaries    interface{}       `json:"summaries"`
	SegmentSizes *index.SpaceUsage `json:"segment_sizes,omitempty"`
}

// Summary handles GET /:index/_summary?include_sizes=bool. Responses are
// cached briefly; a flush invalidates them.
func (h *Handler) Summary(c *gin.Context) {
	name := c.Param("index")
	includeSizes := c.Query("include_sizes") == "true"

	key := name + "?sizes=false"
	if includeSizes {
		key = name + "?sizes=true"
	}
	if cached, ok := h.summaries.Get(key); ok {
		c.JSON(http.StatusOK, cached.(SummaryResponse))
		return
	}

	handle, err := h.catalog.GetLocal(name)
	if err != nil {
		abortErr(c, err)
		return
	}
	meta, err := handle.LoadMeta()
	if err != nil {
		abortErr(c, err)
		return
	}
	resp := SummaryResponse{Summaries: meta}
	if includeSizes {
		space := handle.Space()
		resp.SegmentSizes = &space
	}
	h.summaries.SetDefault(key, resp)
	c.JSON(http.StatusOK, resp)
}

// Flush handles POST /:index/_flush: commit pending mutations and publish a
// fresh reader snapshot.
func (h *Handler) Flush(c *gin.Context) {
	name := c.Param("index")
	handle, err := h.catalog.GetLocal(name)
	if err != nil {
		abortErr(c, err)
		return
	}
	if err := handle.Commit(); err != nil {
		abortErr(c, err)
		return
	}
	h.summaries.Delete(name + "?sizes=false")
	h.summaries.Delete(name + "?sizes=true")
	c.Status(http.StatusOK)
}

// UnknownRoute answers anything the route table does not: unknown verbs
// under a known index shape are a 404, like everything else.
func (h *Handler) UnknownRoute(c *gin.Context) {
	p := ParsePath(c.Request.URL.Path)
	h.log.Debug("no route",
		zap.String("resource", p.Resource),
		zap.String("verb", p.Verb),
		zap.String("sub", p.Sub),
	)
	c.JSON(http.StatusNotFound, ErrorResponse{Message: "no route for path"})
}
