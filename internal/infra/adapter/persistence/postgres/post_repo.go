package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"postbridge/internal/domain/entity"
	"postbridge/internal/repository"
)

// PostRepo is a read-only view over the content service's posts table. The
// pipeline only ever loads single posts by id; writes stay with the content
// service.
type PostRepo struct {
	db *sql.DB
}

func NewPostRepo(db *sql.DB) repository.PostRepository {
	return &PostRepo{db: db}
}

func (repo *PostRepo) Get(ctx context.Context, id int64) (*entity.Post, error) {
	const query = `
SELECT id, title, slug, excerpt, url, published, published_at
FROM posts
WHERE id = $1
LIMIT 1`
	var post entity.Post
	var excerpt sql.NullString
	err := repo.db.QueryRowContext(ctx, query, id).
		Scan(&post.ID, &post.Title, &post.Slug, &excerpt,
			&post.URL, &post.Published, &post.PublishedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Get: %w", err)
	}
	post.Excerpt = excerpt.String
	return &post, nil
}
