package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/raphaelgruber/reachbox/internal/models"
	"github.com/surrealdb/surrealdb.go"
)

// emailRow is the stored projection of an EmailRecord.
// The record id is omitted on read; uid and account carry the identity.
type emailRow struct {
	UID      string    `json:"uid"`
	Account  string    `json:"account"`
	Folder   string    `json:"folder"`
	From     string    `json:"from"`
	To       string    `json:"to"`
	Subject  string    `json:"subject"`
	Body     string    `json:"body"`
	Date     time.Time `json:"date"`
	Category string    `json:"category"`
	Score    *float64  `json:"score,omitempty"`
}

func (r emailRow) record() models.EmailRecord {
	return models.EmailRecord{
		UID:      r.UID,
		Account:  r.Account,
		Folder:   r.Folder,
		From:     r.From,
		To:       r.To,
		Subject:  r.Subject,
		Body:     r.Body,
		Date:     r.Date,
		Category: models.ParseCategory(r.Category),
	}
}

const emailFields = `uid, account, folder, ⟨from⟩, ⟨to⟩, subject, body, date, category`

// UpsertEmail writes e keyed by (account, uid). Writing the same key again
// overwrites every field (last write wins), so re-ingestion never duplicates.
func (c *Client) UpsertEmail(ctx context.Context, e models.EmailRecord) error {
	if err := c.ensureSchema(ctx); err != nil {
		return err
	}

	category := e.Category
	if category == "" {
		category = models.CategoryUncategorized
	}

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("email", [$account, $uid]) SET
			uid = $uid,
			account = $account,
			folder = $folder,
			⟨from⟩ = $from,
			⟨to⟩ = $to,
			subject = $subject,
			body = $body,
			date = $date,
			category = $category,
			indexed = time::now()
	`, map[string]any{
		"uid":      e.UID,
		"account":  e.Account,
		"folder":   e.Folder,
		"from":     e.From,
		"to":       e.To,
		"subject":  e.Subject,
		"body":     e.Body,
		"date":     e.Date.UTC(),
		"category": string(category),
	})
	if err != nil {
		return fmt.Errorf("upsert email %s: %w", e.Key(), wrapQueryError(err))
	}
	return nil
}

// GetEmail fetches one record by key. Returns nil if not found.
func (c *Client) GetEmail(ctx context.Context, key models.Key) (*models.EmailRecord, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}

	results, err := surrealdb.Query[[]emailRow](ctx, c.db,
		`SELECT `+emailFields+` FROM type::record("email", [$account, $uid])`,
		map[string]any{"account": key.Account, "uid": key.UID})
	if err != nil {
		return nil, fmt.Errorf("get email: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return nil, nil
	}
	rec := rows[0].record()
	return &rec, nil
}

// CountEmails returns how many records exist for key. It is 0 or 1 unless
// the upsert invariant is broken.
func (c *Client) CountEmails(ctx context.Context, key models.Key) (int, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return 0, err
	}

	results, err := surrealdb.Query[[]struct{ C int }](ctx, c.db,
		`SELECT count() AS c FROM email WHERE account = $account AND uid = $uid GROUP ALL`,
		map[string]any{"account": key.Account, "uid": key.UID})
	if err != nil {
		return 0, fmt.Errorf("count emails: %w", err)
	}

	rows := first(results)
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].C, nil
}

// SearchEmails runs q against the index. With a text term, records must
// match it in the body and are ordered by BM25 score; without one, they are
// ordered newest first. Filters are combined with AND.
func (c *Client) SearchEmails(ctx context.Context, q models.SearchQuery) ([]models.EmailRecord, error) {
	if err := c.ensureSchema(ctx); err != nil {
		return nil, err
	}

	sql, vars := buildSearchSQL(q)
	results, err := surrealdb.Query[[]emailRow](ctx, c.db, sql, vars)
	if err != nil {
		return nil, fmt.Errorf("search emails: %w", err)
	}

	rows := first(results)
	out := make([]models.EmailRecord, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.record())
	}
	return out, nil
}

// buildSearchSQL assembles the search statement and its parameters.
func buildSearchSQL(q models.SearchQuery) (string, map[string]any) {
	var where []string
	vars := map[string]any{"limit": q.EffectiveLimit()}

	text := strings.TrimSpace(q.Text)
	if text != "" {
		where = append(where, "body @1@ $q")
		vars["q"] = text
	}
	if q.Account != "" {
		where = append(where, "account = $account")
		vars["account"] = q.Account
	}
	if q.Folder != "" {
		where = append(where, "folder = $folder")
		vars["folder"] = q.Folder
	}
	if q.Category != "" {
		where = append(where, "category = $category")
		vars["category"] = string(q.Category)
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(emailFields)
	if text != "" {
		sb.WriteString(", search::score(1) AS score")
	}
	sb.WriteString(" FROM email")
	if len(where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	if text != "" {
		sb.WriteString(" ORDER BY score DESC, date DESC, account ASC, uid ASC")
	} else {
		sb.WriteString(" ORDER BY date DESC, account ASC, uid ASC")
	}
	sb.WriteString(" LIMIT $limit")

	return sb.String(), vars
}
