package rag

import (
	"context"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// LexicalIndex runs the keyword pass over published chunks and their
// document titles.
type LexicalIndex struct {
	db *sqlx.DB
}

func NewLexicalIndex(db *sqlx.DB) *LexicalIndex {
	return &LexicalIndex{db: db}
}

type lexicalRow struct {
	ChunkID     int64          `db:"id"`
	DocID       int64          `db:"doc_id"`
	Seq         int            `db:"seq"`
	Text        string         `db:"text"`
	DocTitle    string         `db:"title"`
	IntentTags  pq.StringArray `db:"intent_tags"`
	ProductTags pq.StringArray `db:"product_tags"`
	VehicleTags pq.StringArray `db:"vehicle_tags"`
}

// Search matches chunks containing any extracted keyword. Hit counts
// are folded into a normalized score so multi-keyword matches rank
// higher.
func (l *LexicalIndex) Search(ctx context.Context, query string, limit int) ([]*ChunkHit, error) {
	if limit == 0 {
		limit = 10
	}

	keywords := ExtractKeywords(query)
	if len(keywords) == 0 {
		return nil, nil
	}

	var conds []string
	var args []interface{}
	for _, kw := range keywords {
		args = append(args, "%"+kw+"%")
		n := len(args)
		conds = append(conds, "(c.text ILIKE $"+itoa(n)+" OR d.title ILIKE $"+itoa(n)+")")
	}
	args = append(args, limit)

	q := `
		SELECT c.id, c.doc_id, c.seq, c.text, d.title,
			d.intent_tags, d.product_tags, d.vehicle_tags
		FROM kb_chunks c
		JOIN kb_docs d ON d.id = c.doc_id
		WHERE d.status = 'published'
		AND (` + strings.Join(conds, " OR ") + `)
		LIMIT $` + itoa(len(args))

	var rows []lexicalRow
	if err := l.db.SelectContext(ctx, &rows, q, args...); err != nil {
		return nil, err
	}

	hits := make([]*ChunkHit, 0, len(rows))
	for i := range rows {
		r := &rows[i]
		hits = append(hits, &ChunkHit{
			ChunkID:     r.ChunkID,
			DocID:       r.DocID,
			Seq:         r.Seq,
			Text:        r.Text,
			DocTitle:    r.DocTitle,
			Score:       lexicalScore(r.Text, r.DocTitle, keywords),
			IntentTags:  r.IntentTags,
			ProductTags: r.ProductTags,
			VehicleTags: r.VehicleTags,
		})
	}

	return hits, nil
}

// lexicalScore is the fraction of keywords present in the chunk text
// or document title.
func lexicalScore(text, title string, keywords []string) float64 {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(text + " " + title)
	matched := 0
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			matched++
		}
	}
	return float64(matched) / float64(len(keywords))
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true,
	"is": true, "are": true, "was": true, "my": true, "i": true,
	"to": true, "of": true, "for": true, "in": true, "on": true,
	"it": true, "this": true, "that": true, "with": true, "you": true,
	"do": true, "does": true, "can": true, "have": true, "has": true,
	"please": true, "hello": true, "hi": true, "thanks": true,
}

// ExtractKeywords lowercases, strips punctuation and drops stopwords
// and short tokens.
func ExtractKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9') && r != '-'
	})

	seen := make(map[string]bool)
	var keywords []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		keywords = append(keywords, f)
		if len(keywords) >= 8 {
			break
		}
	}
	return keywords
}

func itoa(n int) string {
	return strconv.Itoa(n)
}
