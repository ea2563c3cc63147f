package prompt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderExtractIncludesTasks(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	out, err := reg.Render(Extract, ExtractData{
		Now: "2026-10-18 09:00:00",
		Tasks: []TaskLine{
			{Name: "Buy bread", Deadline: "2026-10-18 18:00"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "2026-10-18 09:00:00")
	assert.Contains(t, out, "- Buy bread (due: 2026-10-18 18:00, description: none)")
	assert.NotContains(t, out, "The task list is empty.")
}

func TestRenderExtractEmptyList(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	out, err := reg.Render(Extract, ExtractData{Now: "now"})
	require.NoError(t, err)
	assert.Contains(t, out, "The task list is empty.")
}

func TestRenderDigestAndReminder(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	digest, err := reg.Render(Digest, PersonData{Name: "Anna"})
	require.NoError(t, err)
	assert.Contains(t, digest, "Anna")
	assert.Contains(t, digest, "No plans for today.")

	reminder, err := reg.Render(Reminder, PersonData{
		Name: "Anna",
		Tasks: []TaskLine{
			{Name: "Call mom", Description: "about Sunday"},
			{Name: "Pay rent"},
		},
	})
	require.NoError(t, err)
	assert.Contains(t, reminder, `"Call mom": about Sunday`)
	assert.Contains(t, reminder, `"Pay rent"`)
}

func TestRenderUnknownTemplate(t *testing.T) {
	reg, err := NewRegistryFromYAML([]byte("hello: hi {{ .Name }}\n"))
	require.NoError(t, err)

	_, err = reg.Render("missing", nil)
	assert.Error(t, err)

	out, err := reg.Render("hello", PersonData{Name: "Bob"})
	require.NoError(t, err)
	assert.Equal(t, "hi Bob", out)
}

func TestRegistryCachesConcurrently(t *testing.T) {
	reg, err := NewRegistry()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := reg.Render(Digest, PersonData{Name: "x"})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	reg.mu.Lock()
	defer reg.mu.Unlock()
	assert.Len(t, reg.parsed, 1)
}

func TestNewRegistryRejectsBadYAML(t *testing.T) {
	_, err := NewRegistryFromYAML([]byte("- not\n- a map"))
	assert.Error(t, err)
}
