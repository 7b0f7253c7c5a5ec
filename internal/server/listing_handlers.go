package server

import (
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"bookmarket/internal/app"
	"bookmarket/pkg/domain"
)

type listPage[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}

func (s *Server) handleListings(w http.ResponseWriter, r *http.Request) {
	offset, limit := pagination(r)
	items, total, err := s.app.Listings(offset, limit)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listPage[domain.Listing]{Items: items, Total: total})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	listing, err := s.app.GetListing(r.PathValue("id"))
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// handleCreateListing accepts multipart form data: title, description,
// price plus the artifact file and an optional cover file.
func (s *Server) handleCreateListing(w http.ResponseWriter, r *http.Request, account domain.Account) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	price, err := strconv.ParseInt(r.FormValue("price"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "price must be an integer amount in base units")
		return
	}

	artifact, ok := formFile(r, "artifact")
	if !ok {
		writeError(w, http.StatusBadRequest, "artifact file is required")
		return
	}
	defer artifact.Close()

	var cover io.Reader
	if coverFile, ok := formFile(r, "cover"); ok {
		defer coverFile.Close()
		cover = coverFile
	}

	listing, err := s.app.CreateListing(r.Context(), account,
		r.FormValue("title"), r.FormValue("description"), price, artifact, cover)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, listing)
}

type updateListingRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Price       *int64  `json:"price"`
}

func (s *Server) handleUpdateListing(w http.ResponseWriter, r *http.Request, account domain.Account) {
	var req updateListingRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Title == nil && req.Description == nil && req.Price == nil {
		writeError(w, http.StatusBadRequest, "nothing to update")
		return
	}
	listing, err := s.app.UpdateListing(account, r.PathValue("id"), app.ListingPatch{
		Title:       req.Title,
		Description: req.Description,
		Price:       req.Price,
	})
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func (s *Server) handleDeleteListing(w http.ResponseWriter, r *http.Request, account domain.Account) {
	if err := s.app.DeleteListing(account, r.PathValue("id")); err != nil {
		s.writeAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type resellRequest struct {
	Price int64 `json:"price"`
}

func (s *Server) handleResell(w http.ResponseWriter, r *http.Request, account domain.Account) {
	var req resellRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	listing, err := s.app.AttachSeller(account, r.PathValue("id"), req.Price)
	if err != nil {
		s.writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

func formFile(r *http.Request, field string) (multipart.File, bool) {
	file, _, err := r.FormFile(field)
	if err != nil {
		return nil, false
	}
	return file, true
}
