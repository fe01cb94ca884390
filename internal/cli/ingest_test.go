package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "emails.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadEmailsSingle(t *testing.T) {
	path := writeTemp(t, `{"uid":"1","account":"sales@example.com","subject":"Hi","body":"Book a demo"}`)

	emails, err := readEmails(path)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "1", emails[0].UID)
	assert.Equal(t, "sales@example.com", emails[0].Account)
}

func TestReadEmailsArray(t *testing.T) {
	path := writeTemp(t, `
  [
    {"uid":"1","account":"a","body":"x"},
    {"uid":"2","account":"a","body":"y"}
  ]`)

	emails, err := readEmails(path)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, "2", emails[1].UID)
}

func TestReadEmailsInvalid(t *testing.T) {
	_, err := readEmails(writeTemp(t, `{"uid":`))
	assert.Error(t, err)

	_, err = readEmails(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
