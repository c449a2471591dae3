package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"reward_engine/pkg/errs"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func render(t *testing.T, err error) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	FromError(c, err)

	var body Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestFromErrorDuplicateSubmission(t *testing.T) {
	err := fmt.Errorf("%w: %w: participation p-1 is verified", errs.ErrAlreadySubmitted, errs.ErrAlreadyVerified)
	status, body := render(t, err)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, ErrAlreadySubmitted, body.Code)
	assert.Equal(t, "already submitted", body.Message)
}

func TestFromErrorMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   int
	}{
		{fmt.Errorf("%w: participation p-1 is rejected", errs.ErrAlreadyVerified), http.StatusOK, ErrAlreadyVerified},
		{errs.ErrAlreadyPaid, http.StatusOK, ErrAlreadyPaid},
		{errs.ErrNotFound, http.StatusNotFound, ErrNotFound},
		{errs.ErrForbidden, http.StatusForbidden, ErrNoPermission},
		{fmt.Errorf("%w: payback is rejected", errs.ErrInvalidTransition), http.StatusConflict, ErrInvalidTransition},
		{errs.ErrNotVerified, http.StatusConflict, ErrNotVerified},
		{fmt.Errorf("boom"), http.StatusInternalServerError, ErrServerInternal},
	}
	for _, tc := range cases {
		status, body := render(t, tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, body.Code, tc.err.Error())
	}

	_, body := render(t, errs.ErrAlreadyVerified)
	assert.Equal(t, "already verified", body.Message)
}
