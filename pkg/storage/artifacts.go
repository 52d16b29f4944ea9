package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// UploadText stores a UTF-8 text artifact at the given key.
func UploadText(ctx context.Context, sys System, key, text string) error {
	return sys.Upload(ctx, key, strings.NewReader(text), "text/plain; charset=utf-8")
}

// DownloadText reads the blob at the given key as a UTF-8 string.
func DownloadText(ctx context.Context, sys System, key string) (string, error) {
	body, err := sys.Download(ctx, key)
	if err != nil {
		return "", err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return "", fmt.Errorf("read blob %s: %w", key, err)
	}

	return string(data), nil
}

// UploadJSON marshals v and stores it at the given key.
func UploadJSON(ctx context.Context, sys System, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal blob %s: %w", key, err)
	}

	return sys.Upload(ctx, key, bytes.NewReader(data), "application/json")
}

// DownloadJSON reads the blob at the given key and unmarshals it into v.
func DownloadJSON(ctx context.Context, sys System, key string, v any) error {
	body, err := sys.Download(ctx, key)
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read blob %s: %w", key, err)
	}

	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unmarshal blob %s: %w", key, err)
	}

	return nil
}
