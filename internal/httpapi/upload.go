package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxUploadBytes caps attachment size at 10MB.
const MaxUploadBytes = 10 << 20

// allowedUploadTypes is the attachment allow-list, keyed by detected MIME
// type. Detection sniffs content rather than trusting the client-supplied
// extension.
var allowedUploadTypes = map[string]bool{
	"image/jpeg":         true,
	"image/png":          true,
	"image/gif":          true,
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

type uploadResponse struct {
	FileURL  string `json:"fileUrl"`
	FileType string `json:"fileType"`
	Filename string `json:"filename"`
}

// handleUpload stores a message attachment and returns the URL and detected
// MIME type for inclusion in a subsequent send_message event.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "file too large or malformed upload")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read upload")
		return
	}

	mtype := mimetype.Detect(data)
	if !allowedUploadTypes[mtype.String()] {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("file type %s not allowed", mtype.String()))
		return
	}

	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "upload directory unavailable")
		return
	}

	name := uuid.New().String() + mtype.Extension()
	if err := os.WriteFile(filepath.Join(s.uploadDir, name), data, 0o644); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}

	writeJSON(w, http.StatusOK, uploadResponse{
		FileURL:  "/uploads/" + name,
		FileType: mtype.String(),
		Filename: header.Filename,
	})
}
