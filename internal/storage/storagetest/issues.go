package storagetest

import (
	"context"
	"database/sql"

	"github.com/magnusmanske/mixnmatch-go/internal/model"
)

func (s *Store) CreateIssue(ctx context.Context, issue model.Issue) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO issues (entry_id,catalog,type,json,status,user_id,random) VALUES (?,?,?,?,?,?,ABS(RANDOM())/9223372036854775807.0)",
		issue.EntryID, issue.CatalogID, string(issue.Type), issue.JSON, string(model.IssueStatusOpen), issue.UserID)
	if err != nil {
		return 0, wrap("create issue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, wrap("create issue: last insert id", err)
	}
	return id, nil
}

func (s *Store) ListOpenIssues(ctx context.Context, catalogID int64) ([]model.Issue, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id,entry_id,catalog,type,json,status,user_id,resolved_ts,random FROM issues WHERE catalog=? AND status=?",
		catalogID, string(model.IssueStatusOpen))
	if err != nil {
		return nil, wrap("list open issues", err)
	}
	defer rows.Close()
	var out []model.Issue
	for rows.Next() {
		var i model.Issue
		var typ, status string
		var userID sql.NullInt64
		var resolvedTS sql.NullString
		if err := rows.Scan(&i.ID, &i.EntryID, &i.CatalogID, &typ, &i.JSON, &status, &userID, &resolvedTS, &i.Random); err != nil {
			return nil, wrap("list open issues: scan", err)
		}
		i.Type = model.IssueType(typ)
		i.Status = model.IssueStatus(status)
		if userID.Valid {
			v := userID.Int64
			i.UserID = &v
		}
		if resolvedTS.Valid {
			v := resolvedTS.String
			i.ResolvedTS = &v
		}
		out = append(out, i)
	}
	return out, wrap("list open issues: rows", rows.Err())
}

func (s *Store) ResolveIssue(ctx context.Context, issueID int64, status model.IssueStatus) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE issues SET status=?,resolved_ts=? WHERE id=?",
		string(status), model.Now(), issueID)
	return wrap("resolve issue", err)
}
