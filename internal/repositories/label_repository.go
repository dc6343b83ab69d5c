package repositories

import (
	"database/sql"
	"errors"
	"sync"

	"github.com/alimgiray/bountyscope/internal/models"
	lru "github.com/hashicorp/golang-lru/v2"
)

const labelCacheSize = 1024

// LabelRepository stores labels and the issue_labels association.
// Labels are never re-colored or deleted, so resolved names are cached.
type LabelRepository struct {
	db    *sql.DB
	mu    sync.Mutex
	cache *lru.Cache[string, *models.Label]
}

func NewLabelRepository(db *sql.DB) *LabelRepository {
	cache, err := lru.New[string, *models.Label](labelCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &LabelRepository{db: db, cache: cache}
}

// GetOrCreate returns the label with the normalized name, inserting it on first sight
func (r *LabelRepository) GetOrCreate(label *models.Label) (*models.Label, error) {
	name := models.NormalizeLabelName(label.Name)
	if cached, ok := r.cache.Get(name); ok {
		return cached, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.getByName(name)
	if err == nil {
		r.cache.Add(name, existing)
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	label.Name = name
	_, err = r.db.Exec(
		`INSERT INTO labels (id, name, color, description, created_at) VALUES (?, ?, ?, ?, ?)`,
		label.ID, label.Name, label.Color, label.Description, label.CreatedAt,
	)
	if err = mapInsertError(err); err != nil {
		if !errors.Is(err, ErrDuplicate) {
			return nil, err
		}
		// created by another process between the read and the insert
		if label, err = r.getByName(name); err != nil {
			return nil, err
		}
	}

	r.cache.Add(name, label)
	return label, nil
}

// Attach links a label to an issue; attaching twice is a no-op
func (r *LabelRepository) Attach(issueID, labelID string) error {
	_, err := r.db.Exec(`INSERT OR IGNORE INTO issue_labels (issue_id, label_id) VALUES (?, ?)`, issueID, labelID)
	return err
}

// GetByIssueID returns the labels attached to an issue ordered by name
func (r *LabelRepository) GetByIssueID(issueID string) ([]*models.Label, error) {
	query := `
		SELECT l.id, l.name, l.color, l.description, l.created_at
		FROM labels l
		JOIN issue_labels il ON il.label_id = l.id
		WHERE il.issue_id = ?
		ORDER BY l.name
	`

	rows, err := r.db.Query(query, issueID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []*models.Label
	for rows.Next() {
		label := &models.Label{}
		if err := rows.Scan(&label.ID, &label.Name, &label.Color, &label.Description, &label.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}

	return labels, rows.Err()
}

func (r *LabelRepository) getByName(name string) (*models.Label, error) {
	label := &models.Label{}
	err := r.db.QueryRow(
		`SELECT id, name, color, description, created_at FROM labels WHERE name = ?`, name,
	).Scan(&label.ID, &label.Name, &label.Color, &label.Description, &label.CreatedAt)
	if err != nil {
		return nil, err
	}
	return label, nil
}
