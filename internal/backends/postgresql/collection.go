// Copyright 2021 FerretDB Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/FerretDB/datastore/internal/backends"
	"github.com/FerretDB/datastore/internal/query"
	"github.com/FerretDB/datastore/internal/storeerrors"
	"github.com/FerretDB/datastore/internal/util/lazyerrors"
)

// row is a fetched document with its _id.
type row struct {
	id  string
	doc backends.Document
}

// Insert implements backends.Backend interface.
func (b *backend) Insert(ctx context.Context, params *backends.InsertParams) (*backends.InsertResult, error) {
	res, err := b.InsertMany(ctx, &backends.InsertManyParams{
		Collection: params.Collection,
		Documents:  []backends.Document{params.Document},
	})
	if err != nil {
		return nil, err
	}

	return &backends.InsertResult{ID: res.IDs[0]}, nil
}

// InsertMany implements backends.Backend interface.
//
// Documents are inserted in a single transaction.
func (b *backend) InsertMany(ctx context.Context, params *backends.InsertManyParams) (*backends.InsertManyResult, error) {
	p, err := b.getPool()
	if err != nil {
		return nil, err
	}

	table, err := b.table(ctx, p, params.Collection)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(params.Documents))

	err = inTransaction(ctx, p, func(tx pgx.Tx) error {
		for _, doc := range params.Documents {
			id, err := insert(ctx, tx, table, doc)
			if err != nil {
				return err
			}

			ids = append(ids, id)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &backends.InsertManyResult{IDs: ids}, nil
}

// insert inserts a single document using the given transaction.
func insert(ctx context.Context, tx pgx.Tx, table string, doc backends.Document) (string, error) {
	doc, err := query.Normalize(doc)
	if err != nil {
		return "", err
	}

	id, err := backends.PrepareID(doc)
	if err != nil {
		return "", err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", lazyerrors.Error(err)
	}

	q := fmt.Sprintf(`INSERT INTO %s (%s, %s) VALUES ($1, $2)`, table, idColumn, defaultColumn)

	if _, err = tx.Exec(ctx, q, id, string(raw)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", storeerrors.New(storeerrors.ErrorCodeDuplicateKey, err)
		}

		return "", lazyerrors.Error(err)
	}

	return id, nil
}

// querier is implemented by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// fetch returns all documents matching the filter in insertion order.
//
// If forUpdate is true, matching rows are locked.
func fetch(ctx context.Context, qr querier, table string, filter backends.Filter, forUpdate bool) ([]row, error) {
	var p Placeholder

	where, args := prepareWhereClause(&p, filter)

	q := fmt.Sprintf(`SELECT %s, %s FROM %s%s ORDER BY %s`, idColumn, defaultColumn, table, where, seqColumn)

	if forUpdate {
		q += ` FOR UPDATE`
	}

	rows, err := qr.Query(ctx, q, args...)
	if err != nil {
		return nil, lazyerrors.Error(err)
	}
	defer rows.Close()

	var res []row

	for rows.Next() {
		var id string
		var raw []byte

		if err = rows.Scan(&id, &raw); err != nil {
			return nil, lazyerrors.Error(err)
		}

		doc, err := query.Unmarshal(raw)
		if err != nil {
			return nil, err
		}

		ok, err := query.Match(doc, filter)
		if err != nil {
			return nil, err
		}

		if ok {
			res = append(res, row{id: id, doc: doc})
		}
	}

	if err = rows.Err(); err != nil {
		return nil, lazyerrors.Error(err)
	}

	return res, nil
}

// Find implements backends.Backend interface.
func (b *backend) Find(ctx context.Context, params *backends.FindParams) (*backends.FindResult, error) {
	p, err := b.getPool()
	if err != nil {
		return nil, err
	}

	table, err := b.table(ctx, p, params.Collection)
	if err != nil {
		return nil, err
	}

	rows, err := fetch(ctx, p, table, params.Filter, false)
	if err != nil {
		return nil, err
	}

	res := []backends.Document{}

	for i, r := range rows {
		if int64(i) < params.Skip {
			continue
		}

		if params.Limit > 0 && int64(len(res)) >= params.Limit {
			break
		}

		res = append(res, query.Project(r.doc, params.Projection, params.ExcludeID))
	}

	return &backends.FindResult{Documents: res}, nil
}

// Update implements backends.Backend interface.
//
// All matching documents are updated in a single transaction.
func (b *backend) Update(ctx context.Context, params *backends.UpdateParams) (*backends.UpdateResult, error) {
	p, err := b.getPool()
	if err != nil {
		return nil, err
	}

	table, err := b.table(ctx, p, params.Collection)
	if err != nil {
		return nil, err
	}

	var res backends.UpdateResult

	err = inTransaction(ctx, p, func(tx pgx.Tx) error {
		rows, err := fetch(ctx, tx, table, params.Filter, true)
		if err != nil {
			return err
		}

		q := fmt.Sprintf(`UPDATE %s SET %s = $1 WHERE %s = $2`, table, defaultColumn, idColumn)

		for _, r := range rows {
			changed, err := query.Apply(r.doc, params.Update, false)
			if err != nil {
				return err
			}

			if !changed {
				continue
			}

			raw, err := json.Marshal(r.doc)
			if err != nil {
				return lazyerrors.Error(err)
			}

			if _, err = tx.Exec(ctx, q, string(raw), r.id); err != nil {
				return lazyerrors.Error(err)
			}

			res.Modified++
		}

		if len(rows) > 0 || !params.Upsert {
			return nil
		}

		doc, err := query.Upsert(params.Filter, params.Update)
		if err != nil {
			return err
		}

		res.UpsertedID, err = insert(ctx, tx, table, doc)

		return err
	})
	if err != nil {
		return nil, err
	}

	return &res, nil
}

// Delete implements backends.Backend interface.
func (b *backend) Delete(ctx context.Context, params *backends.DeleteParams) (*backends.DeleteResult, error) {
	p, err := b.getPool()
	if err != nil {
		return nil, err
	}

	table, err := b.table(ctx, p, params.Collection)
	if err != nil {
		return nil, err
	}

	var deleted int64

	err = inTransaction(ctx, p, func(tx pgx.Tx) error {
		rows, err := fetch(ctx, tx, table, params.Filter, true)
		if err != nil {
			return err
		}

		if len(rows) == 0 {
			return nil
		}

		ids := make([]string, len(rows))
		for i, r := range rows {
			ids[i] = r.id
		}

		q := fmt.Sprintf(`DELETE FROM %s WHERE %s = ANY($1)`, table, idColumn)

		tag, err := tx.Exec(ctx, q, ids)
		if err != nil {
			return lazyerrors.Error(err)
		}

		deleted = tag.RowsAffected()

		return nil
	})
	if err != nil {
		return nil, err
	}

	return &backends.DeleteResult{Deleted: deleted}, nil
}
