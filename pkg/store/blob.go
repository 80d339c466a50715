package store

import (
	"context"
	"fmt"
	"io"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// BlobClient is the part of a blob service the store needs
type BlobClient interface {
	Download(ctx context.Context, container, name string) ([]byte, bool, error)
	Upload(ctx context.Context, container, name string, data []byte) error
}

// BlobKV stores one blob per key in a container
type BlobKV struct {
	client    BlobClient
	container string
}

// NewBlobKV wraps a blob client
func NewBlobKV(client BlobClient, container string) *BlobKV {
	return &BlobKV{client: client, container: container}
}

func (b *BlobKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	return b.client.Download(ctx, b.container, key+".json")
}

func (b *BlobKV) Set(ctx context.Context, key string, value []byte) error {
	return b.client.Upload(ctx, b.container, key+".json", value)
}

type azureBlobClient struct {
	client *azblob.Client
}

// NewAzureBlobClient authenticates with a shared key, or anonymously when
// accountKey is empty (SAS-signed service URLs, local emulators)
func NewAzureBlobClient(accountName, accountKey string) (BlobClient, error) {
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", accountName)

	if accountKey == "" {
		client, err := azblob.NewClientWithNoCredential(serviceURL, nil)
		if err != nil {
			return nil, err
		}
		return &azureBlobClient{client: client}, nil
	}

	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, err
	}

	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, credential, nil)
	if err != nil {
		return nil, err
	}

	return &azureBlobClient{client: client}, nil
}

func (s *azureBlobClient) Download(ctx context.Context, container, name string) ([]byte, bool, error) {
	resp, err := s.client.DownloadStream(ctx, container, name, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("download failed: %w", err)
	}

	body := resp.Body
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, false, fmt.Errorf("read blob: %w", err)
	}
	return data, true, nil
}

func (s *azureBlobClient) Upload(ctx context.Context, container, name string, data []byte) error {
	if _, err := s.client.UploadBuffer(ctx, container, name, data, nil); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	return nil
}
