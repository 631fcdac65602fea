package i18n

import (
	"testing"
)

func mustLoad(t *testing.T) *Catalog {
	t.Helper()
	c, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return c
}

func TestCatalog_Message(t *testing.T) {
	c := mustLoad(t)

	tests := []struct {
		name   string
		locale string
		key    string
		want   string
	}{
		{"英语", "en", KeyNext, "Next"},
		{"中文", "zh", KeyNext, "下一页"},
		{"简体中文地区标签", "zh-CN", KeyNext, "下一页"},
		{"下划线写法", "fr_FR", KeyNext, "Suivant"},
		{"德语", "de-AT", KeyNext, "Weiter"},
		{"未支持的语言回退英语", "sw", KeyNext, "Next"},
		{"非法标签回退英语", "!!", KeyNext, "Next"},
		{"未知键返回键名", "en", "no_such_key", "no_such_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Message(tt.locale, tt.key); got != tt.want {
				t.Errorf("Message(%q, %q) = %q, want %q", tt.locale, tt.key, got, tt.want)
			}
		})
	}
}

func TestCatalog_NextLabel(t *testing.T) {
	c := mustLoad(t)

	tests := []struct {
		name     string
		locale   string
		override string
		want     string
	}{
		{"默认转小写", "en", "", "next"},
		{"西班牙语", "es", "", "siguiente"},
		{"覆盖文本", "en", "  More Results ", "more results"},
		{"空白覆盖无效", "de", "   ", "weiter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.NextLabel(tt.locale, tt.override); got != tt.want {
				t.Errorf("NextLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalog_AllLocalesComplete(t *testing.T) {
	c := mustLoad(t)
	keys := []string{KeyNext, KeyStart, KeyStop, KeyRunning, KeyIdle, KeyExported, KeyNothingExported, KeyWaitLogin}

	for i, locale := range c.Locales() {
		for _, key := range keys {
			if _, ok := c.messages[i][key]; !ok {
				t.Errorf("语言 %s 缺少键 %s", locale, key)
			}
		}
	}
}

func TestCatalog_Messagef(t *testing.T) {
	c := mustLoad(t)
	got := c.Messagef("en", KeyExported, 12, 3, "/tmp/a.csv")
	want := "Exported 12 rows from 3 pages to /tmp/a.csv"
	if got != want {
		t.Errorf("Messagef() = %q, want %q", got, want)
	}
}

func TestNewCatalog_RequiresDefault(t *testing.T) {
	_, err := newCatalog(map[string]map[string]string{"zh": {"next": "下一页"}})
	if err == nil {
		t.Error("缺少默认语言时应返回错误")
	}

	c, err := newCatalog(map[string]map[string]string{
		"en": {"next": "Next", "stop": "Stop"},
		"zh": {"next": "下一页"},
	})
	if err != nil {
		t.Fatalf("newCatalog() error = %v", err)
	}
	// 缺失的键回退默认语言
	if got := c.Message("zh", "stop"); got != "Stop" {
		t.Errorf("Message() = %q, want Stop", got)
	}
	if got := c.Match("zh-CN"); got != "zh" {
		t.Errorf("Match(zh-CN) = %q, want zh", got)
	}
}
