package mailer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderAccessCode(t *testing.T) {
	msg, err := RenderAccessCode("ana@ubiobio.cl", AccessCodeData{Name: "Ana <b>", Code: "48213", Role: "FACULTY"})
	require.NoError(t, err)

	assert.Equal(t, "ana@ubiobio.cl", msg.To)
	assert.Contains(t, msg.HTML, "48213")
	assert.Contains(t, msg.HTML, "Ana &lt;b&gt;")
	assert.Contains(t, msg.Text, "48213")
	assert.NotEmpty(t, msg.Subject)
}
