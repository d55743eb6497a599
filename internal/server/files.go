package server

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/abhayk2/localDrop/internal/filestore"
)

const multipartMemory = 8 << 20

// UploadResponse is the body of POST /api/upload.
type UploadResponse struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	File    *filestore.Record `json:"file,omitempty"`
}

// FilesResponse is the body of GET /api/files.
type FilesResponse struct {
	Files []filestore.Record `json:"files" msgpack:"files"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.store.MaxUploadSize > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.store.MaxUploadSize+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, UploadResponse{Message: "File is too large."})
			return
		}
		writeJSON(w, http.StatusBadRequest, UploadResponse{Message: "Invalid upload form."})
		return
	}
	defer r.MultipartForm.RemoveAll()

	if s.store.Password != "" &&
		subtle.ConstantTimeCompare([]byte(r.FormValue("password")), []byte(s.store.Password)) != 1 {
		writeJSON(w, http.StatusUnauthorized, UploadResponse{Message: "Invalid password."})
		return
	}

	file, hdr, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, UploadResponse{Message: "Please select a file to upload."})
		return
	}
	defer file.Close()

	rec, err := s.files.Save(r.Context(), hdr.Filename, file)
	switch {
	case errors.Is(err, filestore.ErrEmptyFile), errors.Is(err, filestore.ErrInvalidName):
		writeJSON(w, http.StatusBadRequest, UploadResponse{Message: "Please select a file to upload."})
		return
	case errors.Is(err, filestore.ErrTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, UploadResponse{Message: "File is too large."})
		return
	case errors.Is(err, filestore.ErrThreatDetected):
		writeJSON(w, http.StatusUnprocessableEntity, UploadResponse{Message: err.Error()})
		return
	case err != nil:
		s.logger.Error("upload failed", zap.String("file", hdr.Filename), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, UploadResponse{Message: "Failed to upload file."})
		return
	}

	writeJSON(w, http.StatusOK, UploadResponse{
		Success: true,
		Message: fmt.Sprintf("%q uploaded successfully and is safe.", rec.Name),
		File:    rec,
	})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	list, err := s.files.List(r.Context())
	if err != nil {
		s.logger.Error("list files failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to list files.")
		return
	}
	if list == nil {
		list = []filestore.Record{}
	}
	writeNegotiated(w, r, FilesResponse{Files: list})
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("filename")
	if !filestore.ValidName(name) {
		http.Error(w, "Invalid filename provided.", http.StatusBadRequest)
		return
	}

	f, rec, err := s.files.Open(r.Context(), name)
	if err != nil {
		if !errors.Is(err, filestore.ErrNotFound) {
			s.logger.Error("download failed", zap.String("file", name), zap.Error(err))
		}
		http.Error(w, "File not found.", http.StatusNotFound)
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", rec.Name))
	http.ServeContent(w, r, rec.Name, rec.UploadedAt, f)
}
