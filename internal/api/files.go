package api

import (
	"net/http"

	"github.com/seantiz/bambubridge/internal/model"
)

type listFilesResponse struct {
	Files []*model.FileInfo `json:"files"`
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.files.List()
	if err != nil {
		s.logger.Error("list project files", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list files")
		return
	}

	if files == nil {
		files = []*model.FileInfo{}
	}
	s.writeJSON(w, http.StatusOK, listFilesResponse{Files: files})
}
