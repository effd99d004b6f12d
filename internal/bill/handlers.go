package bill

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
)

const maxFormSize = int64(MaxDocumentSize)

// extractResponse is the envelope returned by the extract endpoint
type extractResponse struct {
	IsSuccess bool        `json:"is_success"`
	Data      *Extraction `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

func extractFailed(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, extractResponse{Error: message})
}

// handleHealth reports that the server is up
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExtract accepts either a multipart upload in the "file" field or a
// JSON body of the form {"document": "<url>"}
func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		s.handleExtractURL(w, r)
	case "multipart/form-data":
		s.handleExtractUpload(w, r)
	default:
		extractFailed(w, http.StatusUnsupportedMediaType, "Send a multipart file upload or a JSON document url")
	}
}

func (s *Server) handleExtractURL(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Document string `json:"document"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		extractFailed(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Document == "" {
		extractFailed(w, http.StatusBadRequest, "document is required")
		return
	}

	extraction, err := s.service.ExtractURL(r.Context(), req.Document)
	if err != nil {
		slog.Error("Error extracting document", "url", req.Document, "error", err)
		extractFailed(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, extractResponse{IsSuccess: true, Data: extraction})
}

func (s *Server) handleExtractUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxFormSize+1<<20)
	if err := r.ParseMultipartForm(maxFormSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorMsg = fmt.Sprintf("File is too large. Maximum size is %dMB.", MaxDocumentSize>>20)
		}
		extractFailed(w, http.StatusBadRequest, errorMsg)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		extractFailed(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer f.Close()

	if header.Size > maxFormSize {
		extractFailed(w, http.StatusBadRequest, fmt.Sprintf("File is too large. Maximum size is %dMB.", MaxDocumentSize>>20))
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		extractFailed(w, http.StatusInternalServerError, "Error reading file. Please try again.")
		return
	}

	contentType := detectContentType(header.Header.Get("Content-Type"), header.Filename, data)

	extraction, err := s.service.Extract(r.Context(), header.Filename, data, contentType)
	if err != nil {
		slog.Error("Error extracting document", "filename", header.Filename, "error", err)
		extractFailed(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, extractResponse{IsSuccess: true, Data: extraction})
}

// detectContentType prefers the declared type, then the file extension, then
// content sniffing
func detectContentType(declared, filename string, data []byte) string {
	contentType := strings.ToLower(strings.TrimSpace(declared))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return http.DetectContentType(data)
}

// handleListExtractions returns a list of all extractions
func (s *Server) handleListExtractions(w http.ResponseWriter, r *http.Request) {
	extractions, err := s.service.ListExtractions()
	if err != nil {
		slog.Error("Error listing extractions", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if extractions == nil {
		extractions = []*Extraction{}
	}

	writeJSON(w, http.StatusOK, extractions)
}

// handleGetExtraction returns a single extraction
func (s *Server) handleGetExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	extraction, err := s.service.GetExtraction(id)
	if err != nil {
		corsError(w, "Extraction not found", statusFor(err))
		return
	}

	writeJSON(w, http.StatusOK, extraction)
}

// handleGetExtractionFile returns the original document
func (s *Server) handleGetExtractionFile(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, contentType, err := s.service.GetExtractionFile(id)
	if err != nil {
		corsError(w, "File not found", http.StatusNotFound)
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

// handleExportExtraction returns the extraction as an XLSX workbook
func (s *Server) handleExportExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	data, err := s.service.ExportExtraction(id)
	if err != nil {
		slog.Error("Error exporting extraction", "id", id, "error", err)
		corsError(w, "Error exporting extraction", statusFor(err))
		return
	}

	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, id))
	w.Write(data)
}

// handleDeleteExtraction deletes an extraction
func (s *Server) handleDeleteExtraction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.service.DeleteExtraction(id); err != nil {
		corsError(w, "Error deleting extraction", statusFor(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func statusFor(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
