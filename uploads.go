package main

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/AngeKano/repfi/ledger"
	"github.com/AngeKano/repfi/models"
	"github.com/AngeKano/repfi/workflow"
	"github.com/gin-gonic/gin"
)

const (
	maxUploadMemory      = 32 << 20
	maxUploadRequestSize = 50 << 20
	genericFilesField    = "files"
)

func invalidUpload(message string, details map[string]any) *workflow.Error {
	return &workflow.Error{Kind: workflow.KindValidation, Code: workflow.CodeInvalidRequest, Message: message, Details: details}
}

// readComptableUpload collects the batch parts of a multipart request. Parts sent under a category
// field name keep that category; parts sent under "files" are classified from their file name and
// only fill categories that no explicit field provided.
func readComptableUpload(c *gin.Context) (string, []workflow.UploadedFile, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadRequestSize)
	if err := c.Request.ParseMultipartForm(maxUploadMemory); err != nil {
		return "", nil, invalidUpload("invalid multipart request", map[string]any{"request": err.Error()})
	}
	form := c.Request.MultipartForm

	clientId := c.Request.FormValue("clientId")
	if clientId == "" {
		return "", nil, invalidUpload("clientId is required", map[string]any{"clientId": "required"})
	}

	var files []workflow.UploadedFile
	explicit := make(map[models.FileType]bool)
	for _, ft := range models.RequiredFileTypes {
		for _, fh := range form.File[string(ft)] {
			f, err := readPart(ft, fh)
			if err != nil {
				return "", nil, err
			}
			files = append(files, f)
			explicit[ft] = true
		}
	}

	for _, fh := range form.File[genericFilesField] {
		code, ok := ledger.DetectCategory(fh.Filename)
		if !ok {
			return "", nil, invalidUpload("cannot detect the category of "+fh.Filename, map[string]any{"fileName": fh.Filename})
		}
		ft := models.FileType(code)
		if explicit[ft] {
			continue
		}
		f, err := readPart(ft, fh)
		if err != nil {
			return "", nil, err
		}
		files = append(files, f)
	}
	return clientId, files, nil
}

func readPart(ft models.FileType, fh *multipart.FileHeader) (workflow.UploadedFile, error) {
	src, err := fh.Open()
	if err != nil {
		return workflow.UploadedFile{}, invalidUpload("cannot read "+fh.Filename, map[string]any{"fileName": fh.Filename})
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return workflow.UploadedFile{}, invalidUpload("request too large", map[string]any{"limit": tooLarge.Limit})
		}
		return workflow.UploadedFile{}, invalidUpload("cannot read "+fh.Filename, map[string]any{"fileName": fh.Filename})
	}
	return workflow.UploadedFile{
		FileType:    ft,
		FileName:    fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Data:        data,
	}, nil
}
