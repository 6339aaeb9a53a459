package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(FS, "*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, name := range names {
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	assert.Equal(t, ups, downs)
}

func TestLeadsSchemaMatchesRepositoryColumns(t *testing.T) {
	var schema strings.Builder
	for _, name := range []string{"000001_create_leads.up.sql", "000002_lead_qualification.up.sql"} {
		data, err := fs.ReadFile(FS, name)
		require.NoError(t, err)
		schema.Write(data)
	}
	for _, col := range []string{"id", "session_id", "clinic_name", "name", "contact", "summary", "selected_option", "health_score", "urgency", "source", "created_at"} {
		assert.Contains(t, schema.String(), col+" ")
	}
}
