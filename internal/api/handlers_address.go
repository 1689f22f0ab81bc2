package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/metrics"
	"github.com/address-registry/internal/models"
	"github.com/address-registry/internal/service"
	"github.com/gorilla/mux"
)

// SubmitAddressRequest is the body of POST /api/submit-address
type SubmitAddressRequest struct {
	Address   string  `json:"address"`
	Notes     *string `json:"notes"`
	Signature *string `json:"signature,omitempty"`
	Message   *string `json:"message,omitempty"`
}

// SubmitAddressResponse is returned after a successful submission
type SubmitAddressResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// ListAddressesResponse is the body of GET /api/addresses
type ListAddressesResponse struct {
	Success   bool              `json:"success"`
	Count     int               `json:"count"`
	Addresses []*models.Address `json:"addresses"`
}

// CountResponse is the body of GET /api/count
type CountResponse struct {
	Success bool  `json:"success"`
	Count   int64 `json:"count"`
}

// MessageResponse carries a success flag and a human-readable message
type MessageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// handleSubmitAddress handles POST /api/submit-address
func (s *Server) handleSubmitAddress(w http.ResponseWriter, r *http.Request) {
	var req SubmitAddressRequest
	if err := parseJSONBody(r, &req); err != nil {
		s.metrics.ObserveSubmission(metrics.OutcomeInvalid)
		respondError(w, http.StatusBadRequest, MsgInvalidBody)
		return
	}

	input := &service.SubmitInput{
		Address:   req.Address,
		Notes:     req.Notes,
		Signature: req.Signature,
		Message:   req.Message,
	}
	if ua := r.UserAgent(); ua != "" {
		input.UserAgent = &ua
	}

	id, err := s.addressService.Submit(r.Context(), input)
	if err != nil {
		s.metrics.ObserveSubmission(submissionOutcome(err))
		respondServiceError(w, r, err, MsgSaveFailed)
		return
	}

	s.metrics.ObserveSubmission(metrics.OutcomeAccepted)
	respondJSON(w, http.StatusOK, SubmitAddressResponse{
		Success: true,
		Message: MsgSubmitted,
		ID:      id,
	})
}

func submissionOutcome(err error) string {
	switch {
	case apperrors.IsDuplicateKey(err):
		return metrics.OutcomeDuplicate
	case apperrors.IsValidation(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

// handleListAddresses handles GET /api/addresses
func (s *Server) handleListAddresses(w http.ResponseWriter, r *http.Request) {
	addresses, err := s.addressService.List(r.Context())
	if err != nil {
		respondServiceError(w, r, err, MsgFetchFailed)
		return
	}
	if addresses == nil {
		addresses = []*models.Address{}
	}

	respondJSON(w, http.StatusOK, ListAddressesResponse{
		Success:   true,
		Count:     len(addresses),
		Addresses: addresses,
	})
}

// handleCountAddresses handles GET /api/count
func (s *Server) handleCountAddresses(w http.ResponseWriter, r *http.Request) {
	count, err := s.addressService.Count(r.Context())
	if err != nil {
		respondServiceError(w, r, err, MsgCountFailed)
		return
	}

	respondJSON(w, http.StatusOK, CountResponse{
		Success: true,
		Count:   count,
	})
}

// handleDeleteAddress handles DELETE /api/addresses/{id}
func (s *Server) handleDeleteAddress(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, MsgInvalidID)
		return
	}

	if err := s.addressService.Delete(r.Context(), id); err != nil {
		respondServiceError(w, r, err, MsgDeleteFailed)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{
		Success: true,
		Message: MsgDeleted,
	})
}

// servePage serves a named HTML page from the public directory
func (s *Server) servePage(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(s.config.PublicDir, name)
		if _, err := os.Stat(path); err != nil {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, path)
	}
}
