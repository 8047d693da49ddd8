package service

import (
	"context"

	"github.com/casebill/casebill/internal/api/dto"
	"github.com/casebill/casebill/internal/domain/client"
	"github.com/casebill/casebill/internal/tax"
	"github.com/casebill/casebill/internal/types"
	"github.com/samber/lo"
)

// ClientService manages the billed parties
type ClientService interface {
	CreateClient(ctx context.Context, req dto.CreateClientRequest) (*dto.ClientResponse, error)
	GetClient(ctx context.Context, id string) (*dto.ClientResponse, error)
	UpdateClient(ctx context.Context, id string, req dto.UpdateClientRequest) (*dto.ClientResponse, error)
	ListClients(ctx context.Context, filter *types.ClientFilter) (*dto.ListClientsResponse, error)
}

type clientService struct {
	ServiceParams
}

func NewClientService(params ServiceParams) ClientService {
	return &clientService{ServiceParams: params}
}

func (s *clientService) CreateClient(ctx context.Context, req dto.CreateClientRequest) (*dto.ClientResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c := req.ToClient(ctx)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.ClientRepo.Create(ctx, c); err != nil {
		return nil, err
	}

	s.Logger.Infow("created client", "client_id", c.ID)
	return &dto.ClientResponse{Client: c}, nil
}

func (s *clientService) GetClient(ctx context.Context, id string) (*dto.ClientResponse, error) {
	c, err := s.ClientRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return &dto.ClientResponse{Client: c}, nil
}

func (s *clientService) UpdateClient(ctx context.Context, id string, req dto.UpdateClientRequest) (*dto.ClientResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	c, err := s.ClientRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	jurisdiction := c.Jurisdiction
	if req.Name != nil {
		c.Name = *req.Name
	}
	if req.Email != nil {
		c.Email = *req.Email
	}
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.Jurisdiction != nil {
		c.Jurisdiction = *req.Jurisdiction
	}
	if req.Metadata != nil {
		c.Metadata = *req.Metadata
	}
	c.Touch(ctx)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.ClientRepo.Update(ctx, c); err != nil {
		return nil, err
	}

	// open invoices keep their rate, new ones pick up the new jurisdiction
	if c.Jurisdiction != jurisdiction && s.Cache != nil {
		tax.Invalidate(ctx, s.Cache, c.ID)
	}
	return &dto.ClientResponse{Client: c}, nil
}

func (s *clientService) ListClients(ctx context.Context, filter *types.ClientFilter) (*dto.ListClientsResponse, error) {
	if filter == nil {
		filter = types.NewClientFilter()
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	clients, err := s.ClientRepo.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.ClientRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := lo.Map(clients, func(c *client.Client, _ int) *dto.ClientResponse {
		return &dto.ClientResponse{Client: c}
	})
	resp := types.NewListResponse(items, total, filter)
	return &resp, nil
}
