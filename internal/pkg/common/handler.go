package handler

import (
	"mime/multipart"
	"net/http"
	"sync"

	"reward_engine/internal/pkg/uploader"
	"reward_engine/pkg/response"

	"github.com/gin-gonic/gin"
)

const maxFilesPerRequest = 10

// UploadHandler 凭证上传
type UploadHandler struct {
	uploader uploader.Uploader
}

func NewUploadHandler(u uploader.Uploader) *UploadHandler {
	return &UploadHandler{uploader: u}
}

// UploadFile 上传文件 (支持批量)，返回与上传顺序一致的引用
func (h *UploadHandler) UploadFile(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Invalid form data")
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "No files uploaded")
		return
	}
	if len(files) > maxFilesPerRequest {
		response.Error(c, http.StatusBadRequest, response.ErrInvalidParam, "Too many files")
		return
	}

	if h.uploader == nil {
		response.Error(c, http.StatusServiceUnavailable, response.ErrServerInternal, "Uploader not initialized")
		return
	}

	refs, err := h.uploadAll(files)
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.ErrServerInternal, "Upload failed: "+err.Error())
		return
	}
	response.Success(c, refs)
}

func (h *UploadHandler) uploadAll(files []*multipart.FileHeader) ([]string, error) {
	refs := make([]string, len(files))

	var (
		wg        sync.WaitGroup
		errOnce   sync.Once
		uploadErr error
	)
	// 限制并发数为 5
	sem := make(chan struct{}, 5)

	for i, file := range files {
		wg.Add(1)
		go func(index int, f *multipart.FileHeader) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			ref, err := h.uploader.UploadFile(f)
			if err != nil {
				errOnce.Do(func() { uploadErr = err })
				return
			}
			refs[index] = ref
		}(i, file)
	}
	wg.Wait()

	if uploadErr != nil {
		return nil, uploadErr
	}
	return refs, nil
}
