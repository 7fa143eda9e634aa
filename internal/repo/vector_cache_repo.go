package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"
	"github.com/pgvector/pgvector-go"

	"github.com/xxxsen/imvec/internal/model"
	"github.com/xxxsen/imvec/internal/pkg/dbutil"
)

type VectorCacheRepo struct {
	db *sql.DB
}

func NewVectorCacheRepo(db *sql.DB) *VectorCacheRepo {
	return &VectorCacheRepo{db: db}
}

func (r *VectorCacheRepo) Get(ctx context.Context, modelName, contentHash string) ([]float32, bool, error) {
	where := map[string]interface{}{
		"model_name":   modelName,
		"content_hash": contentHash,
	}
	sqlStr, args, err := builder.BuildSelect("vector_cache", where, []string{"vec"})
	if err != nil {
		return nil, false, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var vec pgvector.Vector
	if err := row.Scan(&vec); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, err
	}
	return vec.Slice(), true, nil
}

func (r *VectorCacheRepo) Save(ctx context.Context, item *model.VectorCache) error {
	const query = `
		INSERT INTO vector_cache (model_name, content_hash, vec, ctime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (model_name, content_hash) DO UPDATE SET
			vec = EXCLUDED.vec,
			ctime = EXCLUDED.ctime
	`
	_, err := r.db.ExecContext(ctx, query,
		item.ModelName,
		item.ContentHash,
		pgvector.NewVector(item.Vector),
		item.Ctime,
	)
	return err
}

func (r *VectorCacheRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	const query = `DELETE FROM vector_cache WHERE ctime < $1`
	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
