// handlers_files.go - Uploaded source file handlers
package api

import (
	"bytes"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/flight-replay/backend/internal/models"
	"github.com/flight-replay/backend/internal/storage"
)

// recentFilesLimit caps the recent files listing
const recentFilesLimit = 20

// FileHandlerImpl implements the FileHandler interface
type FileHandlerImpl struct {
	store         storage.Store
	artifacts     ArtifactRemover
	allowedExts   []string
	allowDeletion bool
}

// FileHandlerOptions configure upload filtering and deletion.
type FileHandlerOptions struct {
	AllowedExtensions []string // empty allows everything
	AllowDeletion     bool
}

// NewFileHandler creates a new file handler instance. artifacts may be nil.
func NewFileHandler(store storage.Store, artifacts ArtifactRemover, opts FileHandlerOptions) FileHandler {
	return &FileHandlerImpl{
		store:         store,
		artifacts:     artifacts,
		allowedExts:   opts.AllowedExtensions,
		allowDeletion: opts.AllowDeletion,
	}
}

// HandleUploadFile accepts a file as base64 JSON and saves it to storage
func (h *FileHandlerImpl) HandleUploadFile(c echo.Context) error {
	var req uploadFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid JSON body", err)
	}

	if err := req.validate(); err != nil {
		return err
	}
	if err := h.checkExtension(req.Name); err != nil {
		return err
	}

	decoded, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		return NewBadRequestError("invalid base64 data", err)
	}

	info, err := h.store.Save(req.Name, bytes.NewReader(decoded))
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleUploadBinary accepts raw binary file upload (multipart/form-data)
func (h *FileHandlerImpl) HandleUploadBinary(c echo.Context) error {
	file, err := c.FormFile("file")
	if err != nil {
		return NewBadRequestError("no file provided", err)
	}

	name := c.FormValue("name")
	if name == "" {
		name = file.Filename
	}
	if err := h.checkExtension(name); err != nil {
		return err
	}

	src, err := file.Open()
	if err != nil {
		return NewInternalError("failed to open uploaded file", err)
	}
	defer src.Close()

	info, err := h.store.Save(name, src)
	if err != nil {
		return NewInternalError("failed to save file", err)
	}

	return c.JSON(http.StatusCreated, info)
}

// HandleGetRecentFiles returns the most recently uploaded sources
func (h *FileHandlerImpl) HandleGetRecentFiles(c echo.Context) error {
	files, err := h.store.List(recentFilesLimit)
	if err != nil {
		return NewInternalError("failed to list files", err)
	}
	if files == nil {
		files = []*models.FileInfo{}
	}
	return c.JSON(http.StatusOK, files)
}

// HandleGetFile returns metadata for a specific file
func (h *FileHandlerImpl) HandleGetFile(c echo.Context) error {
	id := c.Param("id")
	info, err := h.store.Get(id)
	if err != nil {
		return NewNotFoundError("file", id)
	}
	return c.JSON(http.StatusOK, info)
}

// HandleDeleteFile removes a file and any checkpoints built from it
func (h *FileHandlerImpl) HandleDeleteFile(c echo.Context) error {
	if !h.allowDeletion {
		return &APIError{Status: http.StatusForbidden, Code: "FORBIDDEN", Message: "file deletion is disabled"}
	}

	id := c.Param("id")
	if err := h.store.Delete(id); err != nil {
		return NewDomainError(err)
	}
	if h.artifacts != nil {
		if err := h.artifacts.Delete(id); err != nil {
			return NewInternalError("file deleted but checkpoints remain", err)
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// HandleRenameFile updates the display name of a file
func (h *FileHandlerImpl) HandleRenameFile(c echo.Context) error {
	id := c.Param("id")
	var req renameFileRequest
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if strings.TrimSpace(req.Name) == "" {
		return NewValidationError("name")
	}

	info, err := h.store.Rename(id, req.Name)
	if err != nil {
		return NewDomainError(err)
	}
	return c.JSON(http.StatusOK, info)
}

func (h *FileHandlerImpl) checkExtension(name string) error {
	if len(h.allowedExts) == 0 {
		return nil
	}
	lower := strings.ToLower(name)
	for _, ext := range h.allowedExts {
		if strings.HasSuffix(lower, ext) {
			return nil
		}
	}
	err := NewBadRequestError("unsupported file type: "+name, nil)
	return err.withDetails("allowed: " + strings.Join(h.allowedExts, ", "))
}

type uploadFileRequest struct {
	Name string `json:"name"`
	Data string `json:"data"` // Base64-encoded file content
}

func (r *uploadFileRequest) validate() error {
	if r.Name == "" {
		return NewValidationError("name")
	}
	if r.Data == "" {
		return NewValidationError("data")
	}
	return nil
}

type renameFileRequest struct {
	Name string `json:"name"`
}
