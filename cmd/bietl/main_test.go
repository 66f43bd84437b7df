package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := rootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err = cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestDatasetsCommand(t *testing.T) {
	out, _, err := execute(t, "datasets")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, []string{"DATASET", "SOURCE", "TABLE", "MODE", "KEY"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"ph_paid_users", "posthog", "ph_paid_users", "snapshot", "-"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"rd_sdr_deals", "rdstation", "rd_crm_sdr_deals", "upsert", "id"}, strings.Fields(lines[4]))
	assert.Equal(t, []string{"trello_cards", "trello", "trello_cards", "upsert", "card_id"}, strings.Fields(lines[6]))
}

func TestValidateCommand_Valid(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", filepath.Join(t.TempDir(), "bi.db"))
	t.Setenv("DATASETS", "rd_sdr_deals")
	t.Setenv("RD_CRM_TOKEN", "tok")
	t.Setenv("RD_SDR_ID", "sdr")

	out, errOut, err := execute(t, "validate", "--env-file", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Empty(t, errOut)
}

func TestValidateCommand_Invalid(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("DB_NAME", "bi")
	t.Setenv("DATASETS", "rd_sdr_deals,nope")

	_, errOut, err := execute(t, "validate", "--env-file", "")
	require.Error(t, err)
	assert.Contains(t, errOut, "error: DB_DRIVER: unknown driver")
	assert.Contains(t, errOut, "error: DATASETS: ")
	assert.Contains(t, errOut, "nope")
}

func TestValidateCommand_MissingCredentialsWarn(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("DB_NAME", "bi.db")
	t.Setenv("DATASETS", "trello_cards")
	t.Setenv("TRELLO_API_KEY", "")
	t.Setenv("TRELLO_TOKEN", "")
	t.Setenv("TRELLO_BOARD_ID", "")

	out, errOut, err := execute(t, "validate", "--env-file", "")
	require.NoError(t, err)
	assert.Contains(t, out, "configuration is valid")
	assert.Contains(t, errOut, "warning: TRELLO_API_KEY: must be set for dataset trello_cards")
}

func TestRunCommand_InvalidConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "oracle")
	t.Setenv("DB_NAME", "bi")

	_, errOut, err := execute(t, "run", "--env-file", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "configuration is invalid")
	assert.Contains(t, errOut, "DB_DRIVER")
}
