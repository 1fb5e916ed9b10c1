package scraper

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/use-agent/appraise/models"
)

func TestIsAdDomain(t *testing.T) {
	tests := []struct {
		host string
		want bool
	}{
		{"an.yandex.ru", true},
		{"banners.adfox.ru", true},
		{"pagead2.googlesyndication.com", true},
		{"MC.YANDEX.RU", true},
		{"www.avito.ru", false},
		{"cdn.cian.site", false},
		{"yandex.ru", false},
	}
	for _, tt := range tests {
		if got := isAdDomain(tt.host); got != tt.want {
			t.Errorf("isAdDomain(%q) = %v, want %v", tt.host, got, tt.want)
		}
	}
}

func TestXPathLiteral(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"История цены", "'История цены'"},
		{"it's", `"it's"`},
		{`a'b"c`, `concat('a', "'", 'b"c')`},
	}
	for _, tt := range tests {
		if got := xpathLiteral(tt.in); got != tt.want {
			t.Errorf("xpathLiteral(%q) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestCategorizeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
	}{
		{"deadline", fmt.Errorf("navigate: %w", context.DeadlineExceeded), models.ErrCodeNavigationTimeout},
		{"canceled", context.Canceled, models.ErrCodeNavigation},
		{"crash", errors.New("websocket: close 1006"), models.ErrCodeBrowserCrash},
		{"dns", errors.New("net::ERR_NAME_NOT_RESOLVED"), models.ErrCodeNavigation},
		{"already coded", models.NewExtractError(models.ErrCodeBlocked, "x", nil), models.ErrCodeBlocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := categorizeError(tt.err, "msg"); got.Code != tt.code {
				t.Errorf("code = %s, want %s", got.Code, tt.code)
			}
		})
	}
}
