package handlers

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"chatline/internal/services"
)

func TestWriteErrorStatusMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cases := []struct {
		err    error
		status int
		body   string
	}{
		{&services.Error{Kind: services.KindValidation, Message: "bad"}, http.StatusBadRequest, `{"error":"bad"}`},
		{&services.Error{Kind: services.KindAuthorization, Message: "no"}, http.StatusForbidden, `{"error":"no"}`},
		{&services.Error{Kind: services.KindNotFound, Message: "gone"}, http.StatusNotFound, `{"error":"gone"}`},
		{&services.Error{Kind: services.KindConflict, Message: "race"}, http.StatusConflict, `{"error":"race"}`},
		{errors.New("secret detail"), http.StatusInternalServerError, `{"error":"internal server error"}`},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(rec)
		writeError(c, tc.err)
		assert.Equal(t, tc.status, rec.Code)
		assert.JSONEq(t, tc.body, rec.Body.String())
	}
}
