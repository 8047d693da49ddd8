package s3

import (
	"testing"

	"github.com/casebill/casebill/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewServiceDisabled(t *testing.T) {
	cfg := config.GetDefaultConfig()
	svc, err := NewService(cfg)
	require.NoError(t, err)
	assert.Nil(t, svc)
}

func TestObjectKey(t *testing.T) {
	s := &s3ServiceImpl{config: &config.S3Config{Bucket: "docs"}}

	key, err := s.getObjectKey("inv_1", DocumentTypeInvoice, DocumentKindHTML)
	require.NoError(t, err)
	assert.Equal(t, "invoices/inv_1.html", key)

	s.config.KeyPrefix = "tenant_a"
	key, err = s.getObjectKey("inv_1", DocumentTypeInvoice, DocumentKindHTML)
	require.NoError(t, err)
	assert.Equal(t, "tenant_a/invoices/inv_1.html", key)

	_, err = s.getObjectKey("inv_1", DocumentType("receipt"), DocumentKindHTML)
	assert.Error(t, err)
}
