package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrgExportRowSave(t *testing.T) {
	exportedAt := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	row := orgExportRow{InstanceID: "inst-1", OrgID: "org-1", Name: "Acme", State: "active", ExportedAt: exportedAt}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	require.Empty(t, insertID)
	require.Equal(t, "inst-1", values["instance_id"])
	require.Equal(t, "org-1", values["org_id"])
	require.Equal(t, "Acme", values["name"])
	require.Equal(t, "active", values["state"])
	require.Equal(t, exportedAt, values["exported_at"])
}

func TestUserExportRowSave(t *testing.T) {
	exportedAt := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	row := userExportRow{InstanceID: "inst-1", UserID: "user-1", Username: "ada", Email: "ada@example.com", State: "active", ExportedAt: exportedAt}

	values, insertID, err := row.Save()
	require.NoError(t, err)
	require.Empty(t, insertID)
	require.Equal(t, "user-1", values["user_id"])
	require.Equal(t, "ada", values["username"])
	require.Equal(t, "ada@example.com", values["email"])
}

func TestBigQueryExporterPageSizeDefault(t *testing.T) {
	var e BigQueryExporter
	require.Equal(t, 500, e.pageSize())

	e.PageSize = 50
	require.Equal(t, 50, e.pageSize())
}
