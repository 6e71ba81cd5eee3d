package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Jason-Cooke/Toshi/internal/catalog"
	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/errs"
	"github.com/Jason-Cooke/Toshi/internal/index"
	"github.com/Jason-Cooke/Toshi/internal/query"
)

// RpcEndpoint is the server side of the peer protocol. It speaks only about
// this node's local indexes and never fans out, which keeps the peer
// topology a tree and makes routing loops impossible.
type RpcEndpoint struct {
	catalog *catalog.Catalog
	log     *zap.Logger
}

// NewRpcEndpoint creates the endpoint over the local catalog.
func NewRpcEndpoint(cat *catalog.Catalog, log *zap.Logger) *RpcEndpoint {
	return &RpcEndpoint{catalog: cat, log: log}
}

// Register mounts the peer verbs.
func (e *RpcEndpoint) Register(r *gin.Engine) {
	in := r.Group("/internal")
	in.GET("/indexes", e.ListIndexes)
	in.POST("/search/:index", e.SearchIndex)
	in.PUT("/place/:index", e.PlaceIndex)
	in.POST("/document/:index", e.PlaceDocument)
	in.DELETE("/document/:index", e.DeleteDocument)
	in.GET("/summary/:index", e.GetSummary)
	in.POST("/bulk/:index", e.BulkInsert)
	in.GET("/ping", e.Ping)
}

func (e *RpcEndpoint) local(c *gin.Context) (*index.Handle, bool) {
	name := c.Param("index")
	h, err := e.catalog.GetLocal(name)
	if err != nil {
		abortRPCErr(c, errs.New(errs.NotFound, "Index: %s not found", name))
		return nil, false
	}
	return h, true
}

// ListIndexes handles GET /internal/indexes.
func (e *RpcEndpoint) ListIndexes(c *gin.Context) {
	c.JSON(http.StatusOK, cluster.ListReply{Indexes: e.catalog.List()})
}

// SearchIndex handles POST /internal/search/:index. Engine failures travel
// in-band as a non-zero result code; everything else is a status.
func (e *RpcEndpoint) SearchIndex(c *gin.Context) {
	handle, ok := e.local(c)
	if !ok {
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortRPCErr(c, errs.Wrap(errs.QueryParse, err, "could not read request body"))
		return
	}
	req, err := query.DecodeSearch(body)
	if err != nil {
		abortRPCErr(c, err)
		return
	}
	results, err := handle.Search(c.Request.Context(), req)
	if err != nil {
		if errs.Is(err, errs.QueryParse) {
			abortRPCErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster.SearchReply{
			Result: cluster.ResultReply{Code: cluster.CodeEngine, Message: err.Error()},
		})
		return
	}
	doc, err := json.Marshal(results)
	if err != nil {
		abortRPCErr(c, errs.Wrap(errs.Engine, err, "could not encode results"))
		return
	}
	c.JSON(http.StatusOK, cluster.SearchReply{Result: cluster.OK(), Doc: doc})
}

// PlaceIndex handles PUT /internal/place/:index.
func (e *RpcEndpoint) PlaceIndex(c *gin.Context) {
	var req cluster.PlaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortRPCErr(c, errs.Wrap(errs.QueryParse, err, "invalid schema in request"))
		return
	}
	name := c.Param("index")
	if _, err := e.catalog.CreateFromManaged(name, req.Schema); err != nil {
		if errs.Is(err, errs.Exists) || errs.Is(err, errs.QueryParse) {
			abortRPCErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster.ResultReply{
			Code:    cluster.CodeEngine,
			Message: "Could not create index: " + name,
		})
		return
	}
	c.JSON(http.StatusOK, cluster.OK())
}

// PlaceDocument handles POST /internal/document/:index.
func (e *RpcEndpoint) PlaceDocument(c *gin.Context) {
	handle, ok := e.local(c)
	if !ok {
		return
	}
	var doc index.AddDocument
	if err := c.ShouldBindJSON(&doc); err != nil {
		abortRPCErr(c, errs.Wrap(errs.QueryParse, err, "Invalid Document request: %s", handle.Name()))
		return
	}
	if err := handle.AddDocument(doc); err != nil {
		if errs.Is(err, errs.QueryParse) {
			abortRPCErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster.ResultReply{
			Code:    cluster.CodeEngine,
			Message: "Add Document Failed: " + handle.Name(),
		})
		return
	}
	c.JSON(http.StatusOK, cluster.OK())
}

// DeleteDocument handles DELETE /internal/document/:index.
func (e *RpcEndpoint) DeleteDocument(c *gin.Context) {
	handle, ok := e.local(c)
	if !ok {
		return
	}
	var del index.DeleteDoc
	if err := c.ShouldBindJSON(&del); err != nil {
		abortRPCErr(c, errs.Wrap(errs.QueryParse, err, "Invalid Document request: %s", handle.Name()))
		return
	}
	if err := handle.DeleteByTerms(c.Request.Context(), del); err != nil {
		if errs.Is(err, errs.QueryParse) {
			abortRPCErr(c, err)
			return
		}
		c.JSON(http.StatusOK, cluster.ResultReply{
			Code:    cluster.CodeEngine,
			Message: "Delete Document Failed: " + handle.Name(),
		})
		return
	}
	c.JSON(http.StatusOK, cluster.OK())
}

// GetSummary handles GET /internal/summary/:index.
func (e *RpcEndpoint) GetSummary(c *gin.Context) {
	handle, ok := e.local(c)
	if !ok {
		return
	}
	meta, err := handle.LoadMeta()
	if err != nil {
		abortRPCErr(c, err)
		return
	}
	c.JSON(http.StatusOK, cluster.SummaryReply{Summary: meta})
}

// BulkInsert handles POST /internal/bulk/:index. The verb is part of the
// contract but not supported.
func (e *RpcEndpoint) BulkInsert(c *gin.Context) {
	abortRPCErr(c, errs.New(errs.Unimplemented, "bulk insert is not implemented"))
}

// Ping handles GET /internal/ping.
func (e *RpcEndpoint) Ping(c *gin.Context) {
	c.JSON(http.StatusOK, cluster.PingReply{Status: "OK"})
}
