package api

import (
	"github.com/gin-gonic/gin"

	"github.com/Jason-Cooke/Toshi/internal/cluster"
	"github.com/Jason-Cooke/Toshi/internal/errs"
)

// ErrorResponse is the public error body.
type ErrorResponse struct {
	Message string `json:"message"`
}

// abortErr writes the public error body with the status the error's kind
// maps to.
func abortErr(c *gin.Context, err error) {
	c.JSON(errs.KindOf(err).HTTPStatus(), ErrorResponse{Message: err.Error()})
}

// abortRPCErr writes the internal error body, carrying the kind so the peer
// client can rebuild the taxonomy on its side.
func abortRPCErr(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	c.JSON(kind.HTTPStatus(), cluster.ErrorBody{Message: err.Error(), Kind: kind.String()})
}
