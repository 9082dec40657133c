// Package gcs provides a checkpoint store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"

	"github.com/JakeFAU/officer-crawler/internal/crawler"
)

// Config captures the bucket and object prefix holding checkpoints.
type Config struct {
	Bucket string
	Prefix string
}

// CheckpointStore keeps one object per unit under Prefix.
type CheckpointStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed checkpoint store.
func New(client *storage.Client, cfg Config) (*CheckpointStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &CheckpointStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object path for a unit.
func (s *CheckpointStore) ObjectName(unit crawler.SearchUnit) string {
	if s.prefix == "" {
		return crawler.CheckpointName(unit)
	}
	return path.Join(s.prefix, crawler.CheckpointName(unit))
}

func (s *CheckpointStore) object(unit crawler.SearchUnit) (*storage.ObjectHandle, error) {
	if err := crawler.ValidateUnit(unit); err != nil {
		return nil, err
	}
	return s.client.Bucket(s.bucket).Object(s.ObjectName(unit)), nil
}

// Exists reports whether a parseable checkpoint object is present.
func (s *CheckpointStore) Exists(ctx context.Context, unit crawler.SearchUnit) (bool, error) {
	_, err := s.Load(ctx, unit)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, crawler.ErrCheckpointNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Load downloads and decodes a checkpoint.
func (s *CheckpointStore) Load(ctx context.Context, unit crawler.SearchUnit) ([]crawler.OfficerRecord, error) {
	obj, err := s.object(unit)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", crawler.ErrCheckpointNotFound, unit)
	}
	if err != nil {
		return nil, fmt.Errorf("open checkpoint object: %w", err)
	}
	defer func() { _ = reader.Close() }()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint object: %w", err)
	}
	return crawler.DecodeCheckpoint(unit, data)
}

// Save uploads the checkpoint with a does-not-exist precondition. A single
// upload request either creates the whole object or nothing.
func (s *CheckpointStore) Save(ctx context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	obj, err := s.object(unit)
	if err != nil {
		return err
	}
	err = s.upload(ctx, obj.If(storage.Conditions{DoesNotExist: true}), records)
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
		return fmt.Errorf("%w: %s", crawler.ErrCheckpointExists, unit)
	}
	return err
}

// Replace overwrites the unit's checkpoint object.
func (s *CheckpointStore) Replace(ctx context.Context, unit crawler.SearchUnit, records []crawler.OfficerRecord) error {
	obj, err := s.object(unit)
	if err != nil {
		return err
	}
	return s.upload(ctx, obj, records)
}

func (s *CheckpointStore) upload(ctx context.Context, obj *storage.ObjectHandle, records []crawler.OfficerRecord) error {
	data, err := crawler.EncodeCheckpoint(records)
	if err != nil {
		return err
	}
	writer := obj.NewWriter(ctx)
	writer.ContentType = "application/json; charset=utf-8"
	writer.ChunkSize = 0
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

// List returns every unit with a checkpoint object under the prefix.
func (s *CheckpointStore) List(ctx context.Context) ([]crawler.SearchUnit, error) {
	listPrefix := crawler.CheckpointPrefix
	if s.prefix != "" {
		listPrefix = s.prefix + "/" + crawler.CheckpointPrefix
	}
	query := &storage.Query{Prefix: listPrefix, Delimiter: "/"}
	it := s.client.Bucket(s.bucket).Objects(ctx, query)
	var units []crawler.SearchUnit
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list checkpoint objects: %w", err)
		}
		if unit, ok := crawler.UnitFromCheckpointName(path.Base(attrs.Name)); ok {
			units = append(units, unit)
		}
	}
	return units, nil
}
