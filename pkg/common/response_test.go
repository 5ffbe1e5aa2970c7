package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ctfex.com/pkg/xerr"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, h gin.HandlerFunc) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/x", nil)
	h(c)
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w, resp
}

func TestSuccess(t *testing.T) {
	w, resp := run(t, func(c *gin.Context) { Success(c, map[string]int{"n": 1}) })
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xerr.OK, resp.Code)
	assert.NotNil(t, resp.Data)
}

func TestFailErr_MapsKind(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{xerr.New(xerr.InvalidOrder, xerr.KindValidation, "qty must be positive"), http.StatusBadRequest, xerr.InvalidOrder},
		{fmt.Errorf("place: %w", xerr.New(xerr.PolicyViolation, xerr.KindPolicy, "post only would cross")), http.StatusUnprocessableEntity, xerr.PolicyViolation},
		{xerr.NewErrCode(xerr.Unauthorized), http.StatusForbidden, xerr.Unauthorized},
		{xerr.NewErrCode(xerr.EngineBusy), http.StatusServiceUnavailable, xerr.EngineBusy},
		{errors.New("disk on fire"), http.StatusInternalServerError, xerr.ServerCommonError},
	}
	for _, tc := range cases {
		w, resp := run(t, func(c *gin.Context) { FailErr(c, tc.err) })
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.code, resp.Code)
		assert.Nil(t, resp.Data)
	}
}
