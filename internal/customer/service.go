package customer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"storefront/internal/model"
	"storefront/internal/repository"

	"gorm.io/gorm"
)

var ErrIncompleteIdentity = errors.New("document type and number are required")

// Identity is the customer data captured at checkout.
type Identity struct {
	DocumentType   string
	DocumentNumber string
	FullName       string
	FirstName      string
	LastName       string
	Email          string
	Phone          string
}

type Service struct {
	repo *repository.CustomerRepository
}

func NewService(repo *repository.CustomerRepository) *Service {
	return &Service{repo: repo}
}

func (s *Service) WithTx(tx *gorm.DB) *Service {
	return &Service{repo: s.repo.WithTx(tx)}
}

// Resolve finds the customer by document, then by email, and creates one when neither matches.
// An existing customer is returned as stored; checkout data only lands on the order snapshot.
func (s *Service) Resolve(ctx context.Context, id Identity) (*model.Customer, error) {
	id = normalize(id)
	if id.DocumentType == "" || id.DocumentNumber == "" {
		return nil, ErrIncompleteIdentity
	}

	c, err := s.repo.FindByDocument(ctx, id.DocumentType, id.DocumentNumber)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("find customer by document: %w", err)
	}

	if id.Email != "" {
		c, err = s.repo.FindByEmail(ctx, id.Email)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("find customer by email: %w", err)
		}
	}

	c = &model.Customer{
		DocumentType:   id.DocumentType,
		DocumentNumber: id.DocumentNumber,
		FirstName:      id.FirstName,
		LastName:       id.LastName,
		Phone:          id.Phone,
		IsActive:       true,
	}
	if id.Email != "" {
		email := id.Email
		c.Email = &email
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return c, nil
}

func normalize(id Identity) Identity {
	id.DocumentType = strings.ToUpper(strings.TrimSpace(id.DocumentType))
	id.DocumentNumber = strings.TrimSpace(id.DocumentNumber)
	id.Email = strings.ToLower(strings.TrimSpace(id.Email))
	id.Phone = strings.TrimSpace(id.Phone)
	id.FirstName = strings.TrimSpace(id.FirstName)
	id.LastName = strings.TrimSpace(id.LastName)
	if id.FirstName == "" && id.LastName == "" {
		id.FirstName, id.LastName = SplitFullName(id.FullName)
	}
	return id
}

// SplitFullName puts the first token in the first name and the rest in the last name.
func SplitFullName(full string) (first, last string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
