package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEveryUpMigrationHasADown(t *testing.T) {
	ups, err := fs.Glob(FS, "*.up.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)

	for _, up := range ups {
		down := strings.TrimSuffix(up, ".up.sql") + ".down.sql"
		_, err := fs.Stat(FS, down)
		assert.NoError(t, err, "missing %s", down)
	}
}

func TestAppointmentsHaveActiveSlotIndex(t *testing.T) {
	data, err := fs.ReadFile(FS, "000003_create_appointments.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(data), "appointments_active_slot_idx")
}
