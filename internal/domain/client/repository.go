package client

import (
	"context"

	"github.com/casebill/casebill/internal/types"
)

type Repository interface {
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, id string) (*Client, error)
	Update(ctx context.Context, client *Client) error
	List(ctx context.Context, filter *types.ClientFilter) ([]*Client, error)
	Count(ctx context.Context, filter *types.ClientFilter) (int, error)
}
