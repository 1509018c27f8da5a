package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"chatline/internal/services"
)

var statusByKind = map[services.Kind]int{
	services.KindValidation:    http.StatusBadRequest,
	services.KindAuthorization: http.StatusForbidden,
	services.KindNotFound:      http.StatusNotFound,
	services.KindConflict:      http.StatusConflict,
	services.KindStorage:       http.StatusInternalServerError,
}

// writeError renders a service rejection as {"error": reason}.
func writeError(c *gin.Context, err error) {
	kind := services.KindOf(err)
	status, ok := statusByKind[kind]
	if !ok {
		status = http.StatusInternalServerError
	}
	msg := "internal server error"
	var svcErr *services.Error
	if errors.As(err, &svcErr) {
		msg = svcErr.Message
	}
	c.JSON(status, gin.H{"error": msg})
}

func auditLevel(err error) string {
	if err == nil {
		return "INFO"
	}
	return "ERROR"
}

func pathID(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
