package dto

import (
	"context"

	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/types"
	"github.com/casebill/casebill/internal/validator"
)

type CreateClientRequest struct {
	Name         string         `json:"name" validate:"required,max=255"`
	Email        string         `json:"email" validate:"omitempty,email"`
	Phone        string         `json:"phone" validate:"omitempty,max=50"`
	Jurisdiction string         `json:"jurisdiction" validate:"omitempty,max=50"`
	Metadata     types.Metadata `json:"metadata,omitempty"`
}

func (r *CreateClientRequest) Validate() error {
	return validator.ValidateRequest(r)
}

func (r *CreateClientRequest) ToClient(ctx context.Context) *client.Client {
	return &client.Client{
		ID:           types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CLIENT),
		Name:         r.Name,
		Email:        r.Email,
		Phone:        r.Phone,
		Jurisdiction: r.Jurisdiction,
		Metadata:     r.Metadata,
		BaseModel:    types.GetDefaultBaseModel(ctx),
	}
}

type UpdateClientRequest struct {
	Name         *string         `json:"name,omitempty" validate:"omitempty,max=255"`
	Email        *string         `json:"email,omitempty" validate:"omitempty,email"`
	Phone        *string         `json:"phone,omitempty" validate:"omitempty,max=50"`
	Jurisdiction *string         `json:"jurisdiction,omitempty" validate:"omitempty,max=50"`
	Metadata     *types.Metadata `json:"metadata,omitempty"`
}

func (r *UpdateClientRequest) Validate() error {
	return validator.ValidateRequest(r)
}

type ClientResponse struct {
	*client.Client
}

type ListClientsResponse = types.ListResponse[*ClientResponse]
