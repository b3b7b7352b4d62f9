package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"wagerledger/internal/ledger"
)

type apiResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, apiResponse{Code: 0, Message: "ok", Data: data})
}

func fail(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, apiResponse{Code: status, Message: message})
}

// failErr maps ledger errors onto HTTP statuses.
func failErr(c *gin.Context, err error) {
	fail(c, statusOf(err), err.Error())
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, ledger.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrTransferFailed):
		return http.StatusPaymentRequired
	case errors.Is(err, ledger.ErrNotRecorded):
		return http.StatusServiceUnavailable
	case errors.Is(err, ledger.ErrMarketExpired),
		errors.Is(err, ledger.ErrAlreadyResolved),
		errors.Is(err, ledger.ErrNotYetExpired),
		errors.Is(err, ledger.ErrNotResolved),
		errors.Is(err, ledger.ErrNothingToClaim):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
