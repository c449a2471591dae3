package handler

import (
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubUploader struct {
	fail bool
}

func (s stubUploader) UploadFile(f *multipart.FileHeader) (string, error) {
	if s.fail {
		return "", errors.New("oss down")
	}
	return "oss://" + f.Filename, nil
}

func multipartRequest(t *testing.T, names ...string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, n := range names {
		part, err := w.CreateFormFile("files", n)
		require.NoError(t, err)
		_, _ = part.Write([]byte("data"))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestUploadFileKeepsOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", NewUploadHandler(stubUploader{}).UploadFile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "a.png", "b.png", "c.png"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"code":0,"message":"success","data":["oss://a.png","oss://b.png","oss://c.png"]}`, w.Body.String())
}

func TestUploadFileFailure(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/upload", NewUploadHandler(stubUploader{fail: true}).UploadFile)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t, "a.png"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, multipartRequest(t))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
