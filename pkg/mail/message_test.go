package mail

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMessageEnvelope(t *testing.T) {
	msg := NewMessage("bot@gmail.com", "NekoMail", "cat@gmail.com", "Tom &amp; Jerry &#x27;s", "<p>hi</p>")

	assert.Equal(t, "[NekoMail] Tom & Jerry 's", msg.Subject)

	h := msg.Headers()
	assert.Equal(t, []string{`"NekoMail" <bot@gmail.com>`}, h["From"])
	assert.Equal(t, []string{"cat@gmail.com"}, h["To"])
	assert.Equal(t, []string{"5 (Lowest)"}, h["X-Priority"])
	assert.Equal(t, []string{"Low"}, h["X-MSMail-Priority"])
	assert.Equal(t, []string{"Low"}, h["Importance"])
}

func TestMessageBodyIsHTML(t *testing.T) {
	msg := NewMessage("bot@gmail.com", "NekoMail", "cat@gmail.com", "s", "<p>hi</p>")

	var buf bytes.Buffer
	_, err := msg.toGomail().WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "Content-Type: text/html")
	assert.Contains(t, buf.String(), "<p>hi</p>")
}
