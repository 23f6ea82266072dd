// Package backup snapshots the full chore dataset to S3-compatible
// storage. Snapshots are JSON exports from the backend, encrypted with a
// passphrase-derived key before upload; restore downloads, decrypts, and
// replays the snapshot through the import endpoint.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/stillon/choremane/internal/api"
	"github.com/stillon/choremane/internal/localstore"
	"github.com/stillon/choremane/internal/model"
)

const keyPrefix = "choremane/"

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration.
type Config struct {
	S3         S3Config
	Passphrase string
}

// Manager runs encrypted dataset snapshots against S3-compatible storage.
type Manager struct {
	mu     sync.RWMutex
	cfg    Config
	api    *api.Client
	store  *localstore.Store
	logger *slog.Logger
	client s3Client
	now    func() time.Time
}

// NewManager creates a backup manager. It is disabled (Enabled reports
// false) until bucket, credentials, and passphrase are all configured.
func NewManager(cfg Config, client *api.Client, store *localstore.Store, logger *slog.Logger) *Manager {
	m := &Manager{
		cfg:    cfg,
		api:    client,
		store:  store,
		logger: logger,
		now:    time.Now,
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether snapshots are configured.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client != nil
}

// ExportNow exports the dataset, encrypts it, and uploads one snapshot
// object. Returns the object key.
func (m *Manager) ExportNow(ctx context.Context) (string, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return "", fmt.Errorf("backup not configured: bucket, credentials, or passphrase missing")
	}

	data, err := m.api.Export(ctx)
	if err != nil {
		return "", fmt.Errorf("export dataset: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	salt, err := GenerateSalt()
	if err != nil {
		return "", err
	}
	sealed, err := Encrypt(raw, passphrase, salt)
	if err != nil {
		return "", err
	}

	key := fmt.Sprintf("%sexport-%s.json.enc", keyPrefix, m.now().UTC().Format("2006-01-02T150405Z"))
	_, err = client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(sealed),
		ContentLength: aws.Int64(int64(len(sealed))),
	})
	if err != nil {
		return "", fmt.Errorf("upload snapshot: %w", err)
	}

	if err := m.store.Set(localstore.KeyLastBackup, m.now().UTC().Format(time.RFC3339)); err != nil {
		m.logger.Warn("failed to record last backup time", "error", err)
	}
	m.logger.Info("snapshot uploaded",
		"key", key,
		"chores", len(data.Chores),
		"bytes", len(sealed),
	)
	return key, nil
}

// Restore downloads a snapshot, decrypts it, and replays it through the
// import endpoint. An empty key restores the most recent snapshot.
func (m *Manager) Restore(ctx context.Context, key string) (model.ImportResult, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	passphrase := m.cfg.Passphrase
	m.mu.RUnlock()

	if client == nil {
		return model.ImportResult{}, fmt.Errorf("backup not configured")
	}

	if key == "" {
		latest, err := m.latestKey(ctx)
		if err != nil {
			return model.ImportResult{}, err
		}
		key = latest
	}

	obj, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("download snapshot: %w", err)
	}
	defer obj.Body.Close()

	sealed, err := io.ReadAll(obj.Body)
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("read snapshot: %w", err)
	}
	raw, err := Decrypt(sealed, passphrase)
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("decrypt snapshot: %w", err)
	}

	var data model.ExportData
	if err := json.Unmarshal(raw, &data); err != nil {
		return model.ImportResult{}, fmt.Errorf("decode snapshot: %w", err)
	}

	result, err := m.api.Import(ctx, data)
	if err != nil {
		return model.ImportResult{}, fmt.Errorf("import snapshot: %w", err)
	}
	m.logger.Info("snapshot restored", "key", key, "chores", result.ImportedChores)
	return result, nil
}

// latestKey finds the most recently modified snapshot object.
func (m *Manager) latestKey(ctx context.Context) (string, error) {
	objects, err := m.listSnapshots(ctx)
	if err != nil {
		return "", err
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("no snapshots found")
	}
	return objects[len(objects)-1].key, nil
}

// Cleanup deletes snapshots older than the retention period.
func (m *Manager) Cleanup(ctx context.Context, retentionDays int) error {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	if client == nil || retentionDays <= 0 {
		return nil
	}

	objects, err := m.listSnapshots(ctx)
	if err != nil {
		return err
	}
	cutoff := m.now().UTC().AddDate(0, 0, -retentionDays)
	for _, obj := range objects {
		if !obj.modified.Before(cutoff) {
			continue
		}
		if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(obj.key),
		}); err != nil {
			m.logger.Warn("failed to delete old snapshot", "key", obj.key, "error", err)
			continue
		}
		m.logger.Info("deleted old snapshot", "key", obj.key)
	}
	return nil
}

type snapshot struct {
	key      string
	modified time.Time
}

// listSnapshots returns snapshot objects sorted oldest first.
func (m *Manager) listSnapshots(ctx context.Context) ([]snapshot, error) {
	m.mu.RLock()
	client := m.client
	bucket := m.cfg.S3.Bucket
	m.mu.RUnlock()

	out, err := client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(keyPrefix),
	})
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	snapshots := make([]snapshot, 0, len(out.Contents))
	for _, obj := range out.Contents {
		if obj.Key == nil || !strings.HasSuffix(*obj.Key, ".json.enc") {
			continue
		}
		s := snapshot{key: *obj.Key}
		if obj.LastModified != nil {
			s.modified = *obj.LastModified
		}
		snapshots = append(snapshots, s)
	}
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].modified.Before(snapshots[j].modified)
	})
	return snapshots, nil
}

// LastBackup returns the recorded time of the last successful snapshot.
func (m *Manager) LastBackup() (time.Time, bool) {
	raw, ok, err := m.store.Get(localstore.KeyLastBackup)
	if err != nil || !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
