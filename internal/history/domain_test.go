package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractDomain(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		want   string
		wantOK bool
	}{
		{"plain", "https://example.com/path", "example.com", true},
		{"strips www", "https://www.example.com/", "example.com", true},
		{"strips only one www", "https://www.www.example.com/", "www.example.com", true},
		{"lowercases", "https://News.YCombinator.COM/item?id=1", "news.ycombinator.com", true},
		{"keeps subdomain", "https://docs.google.com/document", "docs.google.com", true},
		{"drops port", "http://localhost:3000/x", "localhost", true},
		{"trailing dot", "https://example.com./", "example.com", true},
		{"chrome scheme", "chrome://settings", "", false},
		{"extension scheme", "chrome-extension://abcdef/popup.html", "", false},
		{"about blank", "about:blank", "", false},
		{"no host", "mailto:someone@example.com", "", false},
		{"garbage", "://nope", "", false},
		{"empty", "", "", false},
		{"bad escape", "http://%zz", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractDomain(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsExcludedURL(t *testing.T) {
	assert.True(t, IsExcludedURL("chrome://history"))
	assert.True(t, IsExcludedURL("CHROME-EXTENSION://id/page"))
	assert.True(t, IsExcludedURL("file:///etc/hosts"))
	assert.False(t, IsExcludedURL("https://chrome.google.com/webstore"))
	assert.False(t, IsExcludedURL("no-colon-here"))
}

func TestDenylistBlocks(t *testing.T) {
	deny := Denylist{"chase.com", "www.paypal.com"}

	assert.True(t, deny.Blocks("chase.com"))
	assert.True(t, deny.Blocks("secure.chase.com"))
	assert.True(t, deny.Blocks("paypal.com"))
	assert.False(t, deny.Blocks("notchase.com"))
	assert.False(t, deny.Blocks("example.com"))
	assert.False(t, Denylist(nil).Blocks("chase.com"))
}
