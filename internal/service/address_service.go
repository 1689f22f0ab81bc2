// Package service implements the address registry operations on top of a
// storage.Store.
package service

import (
	"context"
	"regexp"

	apperrors "github.com/address-registry/internal/errors"
	"github.com/address-registry/internal/logging"
	"github.com/address-registry/internal/models"
	"github.com/address-registry/internal/storage"
)

// addressPattern accepts 0x followed by exactly 40 hex digits, any case
var addressPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// IsValidAddress reports whether address is a well-formed Ethereum address.
// Checksum casing is not enforced.
func IsValidAddress(address string) bool {
	return addressPattern.MatchString(address)
}

// ValidateAddress returns a validation error for malformed addresses
func ValidateAddress(address string) error {
	if !IsValidAddress(address) {
		return apperrors.NewInvalidAddressError(address)
	}
	return nil
}

// SubmitInput represents input for submitting an address
type SubmitInput struct {
	Address   string
	Notes     *string
	UserAgent *string
	Signature *string
	Message   *string
}

// AddressService handles address submission, listing, counting and deletion
type AddressService struct {
	store            storage.Store
	verifier         *SignatureVerifier
	requireSignature bool
	logger           *logging.Logger
}

// Option configures an AddressService
type Option func(*AddressService)

// WithRequireSignature rejects submissions that do not carry a signature
func WithRequireSignature(required bool) Option {
	return func(s *AddressService) {
		s.requireSignature = required
	}
}

// WithLogger sets the service logger
func WithLogger(logger *logging.Logger) Option {
	return func(s *AddressService) {
		s.logger = logger
	}
}

// NewAddressService creates a new address service
func NewAddressService(store storage.Store, verifier *SignatureVerifier, opts ...Option) *AddressService {
	s := &AddressService{
		store:    store,
		verifier: verifier,
		logger:   logging.GetGlobalLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.verifier == nil {
		s.verifier = NewSignatureVerifier()
	}
	return s
}

// Submit validates and stores a new address, returning its id.
// Validation happens before the store is touched.
func (s *AddressService) Submit(ctx context.Context, input *SubmitInput) (int64, error) {
	if input == nil {
		return 0, apperrors.NewInvalidAddressError("")
	}
	if err := ValidateAddress(input.Address); err != nil {
		return 0, err
	}
	if err := s.checkSignature(input); err != nil {
		return 0, err
	}

	id, err := s.store.Insert(ctx, &models.NewAddress{
		Address:   input.Address,
		UserAgent: input.UserAgent,
		Notes:     input.Notes,
		Signature: input.Signature,
		Message:   input.Message,
	})
	if err != nil {
		if !apperrors.IsDuplicateKey(err) {
			s.logger.WithError(err).WithField("address", input.Address).Error("Failed to insert address")
		}
		return 0, err
	}

	s.logger.WithFields(map[string]interface{}{
		"id":      id,
		"address": input.Address,
		"signed":  input.Signature != nil,
	}).Info("Address submitted")

	return id, nil
}

func (s *AddressService) checkSignature(input *SubmitInput) error {
	hasSignature := input.Signature != nil && *input.Signature != ""
	hasMessage := input.Message != nil && *input.Message != ""

	switch {
	case !hasSignature && !hasMessage:
		// A migrated table expects every new row to be signed.
		if s.requireSignature || s.store.HasSignatureColumns() {
			return apperrors.NewInvalidSignatureError("Signature and message are required", nil)
		}
		// Empty strings are stored as absent.
		input.Signature, input.Message = nil, nil
		return nil
	case hasSignature != hasMessage:
		return apperrors.NewInvalidSignatureError("Signature and message must be provided together", nil)
	}

	if err := s.verifier.Verify(input.Address, *input.Message, *input.Signature); err != nil {
		return apperrors.NewInvalidSignatureError("Signature verification failed", err)
	}
	return nil
}

// List returns every stored address, most recent first
func (s *AddressService) List(ctx context.Context) ([]*models.Address, error) {
	addresses, err := s.store.ListAll(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list addresses")
		return nil, err
	}
	return addresses, nil
}

// Count returns the number of stored addresses
func (s *AddressService) Count(ctx context.Context) (int64, error) {
	count, err := s.store.Count(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to count addresses")
		return 0, err
	}
	return count, nil
}

// Delete removes the address with id. Deleting an absent id succeeds.
func (s *AddressService) Delete(ctx context.Context, id int64) error {
	affected, err := s.store.DeleteByID(ctx, id)
	if err != nil {
		s.logger.WithError(err).WithField("id", id).Error("Failed to delete address")
		return err
	}

	s.logger.WithFields(map[string]interface{}{
		"id":       id,
		"affected": affected,
	}).Info("Address delete processed")
	return nil
}
