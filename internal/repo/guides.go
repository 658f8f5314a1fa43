package repo

import (
	"context"

	"operador/internal/domain"
)

// ListGuides returns the guide library, optionally restricted to one layer.
func (r Repo) ListGuides(ctx context.Context, layer string) ([]domain.Guide, error) {
	query := `SELECT id,title,layer,content,COALESCE(pdf_url,''),COALESCE(reading_time,0),sort_order FROM guides`
	var args []any
	if layer != "" {
		query += ` WHERE layer=?`
		args = append(args, layer)
	}
	query += ` ORDER BY CASE layer WHEN 'illusion' THEN 1 WHEN 'clarity' THEN 2 WHEN 'pattern' THEN 3 WHEN 'escape' THEN 4 ELSE 5 END, sort_order, id`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var res []domain.Guide
	for rows.Next() {
		var g domain.Guide
		if err := rows.Scan(&g.ID, &g.Title, &g.Layer, &g.Content, &g.PDFURL, &g.ReadingTime, &g.Order); err != nil {
			return nil, classify(err)
		}
		res = append(res, g)
	}
	return res, classify(rows.Err())
}
