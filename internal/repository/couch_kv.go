package repository

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-kivik/kivik/v4"
)

const couchDocPrefix = "record:"

type couchDoc struct {
	ID    string `json:"_id"`
	Rev   string `json:"_rev,omitempty"`
	Value string `json:"value"`
}

type couchKV struct {
	client *kivik.Client
	dbName string
}

func NewCouchKV(client *kivik.Client, dbName string) KV {
	return &couchKV{
		client: client,
		dbName: dbName,
	}
}

func docID(key string) string {
	return couchDocPrefix + key
}

func (r *couchKV) Get(ctx context.Context, key string) (string, error) {
	db := r.client.DB(r.dbName)

	var doc couchDoc
	if err := db.Get(ctx, docID(key)).ScanDoc(&doc); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to get document: %w", err)
	}

	return doc.Value, nil
}

func (r *couchKV) rev(ctx context.Context, db *kivik.DB, id string) (string, error) {
	rev, err := db.GetRev(ctx, id)
	if err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("failed to fetch revision: %w", err)
	}
	return rev, nil
}

func (r *couchKV) Put(ctx context.Context, key, value string) error {
	db := r.client.DB(r.dbName)
	id := docID(key)

	rev, err := r.rev(ctx, db, id)
	if err != nil {
		return err
	}

	doc := &couchDoc{ID: id, Rev: rev, Value: value}
	if _, err := db.Put(ctx, id, doc); err != nil {
		return fmt.Errorf("failed to put document: %w", err)
	}

	return nil
}

func (r *couchKV) Delete(ctx context.Context, key string) error {
	db := r.client.DB(r.dbName)
	id := docID(key)

	rev, err := r.rev(ctx, db, id)
	if err != nil {
		return err
	}
	if rev == "" {
		return nil
	}

	if _, err := db.Delete(ctx, id, rev); err != nil {
		if kivik.HTTPStatus(err) == http.StatusNotFound {
			return nil
		}
		return fmt.Errorf("failed to delete document: %w", err)
	}

	return nil
}

// List walks _all_docs inside the record: prefix. The cursor is the last
// document id of the previous page.
func (r *couchKV) List(ctx context.Context, cursor string, limit int) (*ListPage, error) {
	db := r.client.DB(r.dbName)

	params := map[string]interface{}{
		"startkey": couchDocPrefix,
		"endkey":   couchDocPrefix + "\ufff0",
	}
	if cursor != "" {
		params["startkey"] = cursor
		params["skip"] = 1
	}
	if limit > 0 {
		params["limit"] = limit
	}

	rows := db.AllDocs(ctx, kivik.Params(params))
	defer rows.Close()

	page := &ListPage{}
	var (
		last string
		n    int
	)
	for rows.Next() {
		id, err := rows.ID()
		if err != nil {
			return nil, fmt.Errorf("failed to read row id: %w", err)
		}
		last = id
		n++
		if strings.HasPrefix(id, couchDocPrefix) {
			page.Keys = append(page.Keys, strings.TrimPrefix(id, couchDocPrefix))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	if limit <= 0 || n < limit {
		page.Complete = true
	} else {
		page.Cursor = last
	}

	return page, nil
}

// EnsureDatabase creates dbName when it does not exist yet.
func EnsureDatabase(ctx context.Context, client *kivik.Client, dbName string) (bool, error) {
	exists, err := client.DBExists(ctx, dbName)
	if err != nil {
		return false, fmt.Errorf("failed to check database existence: %w", err)
	}
	if exists {
		return false, nil
	}
	if err := client.CreateDB(ctx, dbName); err != nil {
		return false, fmt.Errorf("failed to create database: %w", err)
	}
	return true, nil
}
