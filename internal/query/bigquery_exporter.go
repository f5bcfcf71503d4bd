package query

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/haloiam/core/pkg/query"
	"gorm.io/gorm"
)

// BigQueryExporter is an opt-in analytics mirror: on each run it re-reads
// the org and user projection tables through the same search framework
// interactive queries use, and streams the result into two BigQuery
// tables. It is additive to the relational projections, not a replacement
// — interactive reads (ResolveLabelPolicy, Organizations, HumanUsers, ...)
// always serve from Postgres/sqlite; BigQuery only ever answers the
// analytics queries a deployment chooses to point at it.
type BigQueryExporter struct {
	DB       *gorm.DB
	Client   *bigquery.Client
	Dataset  string
	PageSize int
}

// orgExportRow and userExportRow are the flattened shapes written to
// BigQuery — denormalized, since an analytics table has no reason to carry
// the relational schema's foreign keys.
type orgExportRow struct {
	InstanceID string
	OrgID      string
	Name       string
	State      string
	ExportedAt time.Time
}

func (r orgExportRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"instance_id": r.InstanceID,
		"org_id":      r.OrgID,
		"name":        r.Name,
		"state":       r.State,
		"exported_at": r.ExportedAt,
	}, "", nil
}

type userExportRow struct {
	InstanceID string
	UserID     string
	Username   string
	Email      string
	State      string
	ExportedAt time.Time
}

func (r userExportRow) Save() (map[string]bigquery.Value, string, error) {
	return map[string]bigquery.Value{
		"instance_id": r.InstanceID,
		"user_id":     r.UserID,
		"username":    r.Username,
		"email":       r.Email,
		"state":       r.State,
		"exported_at": r.ExportedAt,
	}, "", nil
}

func (e *BigQueryExporter) pageSize() int {
	if e.PageSize <= 0 {
		return 500
	}
	return e.PageSize
}

// ExportOrganizations pages through organizations_projection for
// instanceID via the same Organizations search used for interactive reads,
// and streams every row into the "organizations" BigQuery table.
func (e *BigQueryExporter) ExportOrganizations(ctx context.Context, instanceID string) (int, error) {
	inserter := e.Client.Dataset(e.Dataset).Table("organizations").Inserter()
	exportedAt := time.Now()

	total := 0
	offset := 0
	for {
		page, err := Organizations(ctx, e.DB, instanceID, query.Request{Offset: offset, Limit: e.pageSize()})
		if err != nil {
			return total, fmt.Errorf("bigquery export: paging organizations: %w", err)
		}
		if len(page.Items) == 0 {
			break
		}
		rows := make([]*orgExportRow, 0, len(page.Items))
		for _, row := range page.Items {
			rows = append(rows, &orgExportRow{
				InstanceID: row.InstanceID, OrgID: row.OrgID, Name: row.Name, State: row.State, ExportedAt: exportedAt,
			})
		}
		if err := inserter.Put(ctx, rows); err != nil {
			return total, fmt.Errorf("bigquery export: inserting organizations: %w", err)
		}
		total += len(rows)
		offset += e.pageSize()
		if len(page.Items) < e.pageSize() {
			break
		}
	}
	return total, nil
}

// ExportHumanUsers is ExportOrganizations's counterpart over
// users_projection, streamed into the "users" BigQuery table.
func (e *BigQueryExporter) ExportHumanUsers(ctx context.Context, instanceID string) (int, error) {
	inserter := e.Client.Dataset(e.Dataset).Table("users").Inserter()
	exportedAt := time.Now()

	total := 0
	offset := 0
	for {
		page, err := HumanUsers(ctx, e.DB, instanceID, query.Request{Offset: offset, Limit: e.pageSize()})
		if err != nil {
			return total, fmt.Errorf("bigquery export: paging users: %w", err)
		}
		if len(page.Items) == 0 {
			break
		}
		rows := make([]*userExportRow, 0, len(page.Items))
		for _, row := range page.Items {
			rows = append(rows, &userExportRow{
				InstanceID: row.InstanceID, UserID: row.UserID, Username: row.Username,
				Email: row.Email, State: row.State, ExportedAt: exportedAt,
			})
		}
		if err := inserter.Put(ctx, rows); err != nil {
			return total, fmt.Errorf("bigquery export: inserting users: %w", err)
		}
		total += len(rows)
		offset += e.pageSize()
		if len(page.Items) < e.pageSize() {
			break
		}
	}
	return total, nil
}
