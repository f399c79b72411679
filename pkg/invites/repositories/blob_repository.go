package repositories

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cardpost/invite-host/pkg/invites/models"
	"github.com/cardpost/invite-host/pkg/storage"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BlobRepository is the SQL storage backend. Blob bytes live in one table keyed by pathname;
// URLs point at the service's own blob host.
type BlobRepository struct {
	db      *gorm.DB
	baseURL string
}

func NewBlobRepository(db *gorm.DB, baseURL string) *BlobRepository {
	return &BlobRepository{db: db, baseURL: strings.TrimRight(baseURL, "/")}
}

func (r *BlobRepository) Put(ctx context.Context, key string, body io.Reader, contentType string) (storage.Blob, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.Blob{}, fmt.Errorf("read blob body: %w", err)
	}
	row := models.StoredBlob{
		Pathname:    key,
		ContentType: contentType,
		Size:        int64(len(data)),
		Data:        data,
		UpdatedAt:   time.Now(),
	}
	// overschrijven is de bedoeling: zelfde sleutel, laatste schrijver wint
	err = r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
	if err != nil {
		return storage.Blob{}, fmt.Errorf("store blob %s: %w", key, err)
	}
	return r.blob(row), nil
}

func (r *BlobRepository) List(ctx context.Context, prefix string, limit int) ([]storage.Blob, error) {
	var rows []models.StoredBlob
	q := r.db.WithContext(ctx).
		Select("pathname", "content_type", "size").
		Where("pathname LIKE ? ESCAPE '\\'", escapeLike(prefix)+"%").
		Order("pathname")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list blobs %s: %w", prefix, err)
	}
	out := make([]storage.Blob, 0, len(rows))
	for _, row := range rows {
		out = append(out, r.blob(row))
	}
	return out, nil
}

func (r *BlobRepository) Open(ctx context.Context, key string) (io.ReadCloser, storage.Blob, error) {
	var row models.StoredBlob
	err := r.db.WithContext(ctx).Where("pathname = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, storage.Blob{}, storage.ErrNotFound
	}
	if err != nil {
		return nil, storage.Blob{}, fmt.Errorf("open blob %s: %w", key, err)
	}
	return io.NopCloser(bytes.NewReader(row.Data)), r.blob(row), nil
}

func (r *BlobRepository) blob(row models.StoredBlob) storage.Blob {
	return storage.Blob{
		Key:         row.Pathname,
		URL:         r.baseURL + "/blob/" + row.Pathname,
		ContentType: row.ContentType,
		Size:        row.Size,
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
