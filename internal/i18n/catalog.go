// Package i18n 提供界面文案和"下一页"控件的本地化文本
package i18n

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// DefaultLocale 默认语言
const DefaultLocale = "en"

// 文案键
const (
	KeyNext            = "next"
	KeyStart           = "start"
	KeyStop            = "stop"
	KeyRunning         = "running"
	KeyIdle            = "idle"
	KeyExported        = "exported"
	KeyNothingExported = "nothing_exported"
	KeyWaitLogin       = "wait_login"
)

//go:embed locales/*.yaml
var localeFS embed.FS

// Catalog 多语言文案表
type Catalog struct {
	tags     []language.Tag
	messages []map[string]string // 与tags下标对应
	matcher  language.Matcher
}

// Load 加载内置的语言文件
func Load() (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("读取语言目录失败: %w", err)
	}

	files := make(map[string]map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".yaml" {
			continue
		}

		data, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("读取语言文件失败 [%s]: %w", name, err)
		}

		var messages map[string]string
		if err := yaml.Unmarshal(data, &messages); err != nil {
			return nil, fmt.Errorf("解析语言文件失败 [%s]: %w", name, err)
		}
		files[strings.TrimSuffix(name, ".yaml")] = messages
	}

	return newCatalog(files)
}

// newCatalog 默认语言必须存在,且排在第一位作为匹配失败时的回退
func newCatalog(files map[string]map[string]string) (*Catalog, error) {
	base, ok := files[DefaultLocale]
	if !ok {
		return nil, fmt.Errorf("缺少默认语言文件: %s", DefaultLocale)
	}

	names := make([]string, 0, len(files))
	for name := range files {
		if name != DefaultLocale {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	c := &Catalog{
		tags:     []language.Tag{language.MustParse(DefaultLocale)},
		messages: []map[string]string{base},
	}
	for _, name := range names {
		tag, err := language.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("无效的语言标签 [%s]: %w", name, err)
		}
		c.tags = append(c.tags, tag)
		c.messages = append(c.messages, files[name])
	}
	c.matcher = language.NewMatcher(c.tags)
	return c, nil
}

// Locales 支持的语言列表
func (c *Catalog) Locales() []string {
	result := make([]string, len(c.tags))
	for i, tag := range c.tags {
		result[i] = tag.String()
	}
	return result
}

// resolve 返回与locale最匹配的语言下标,无法匹配时为默认语言
func (c *Catalog) resolve(locale string) int {
	tag, err := language.Parse(strings.ReplaceAll(locale, "_", "-"))
	if err != nil {
		return 0
	}
	_, index, confidence := c.matcher.Match(tag)
	if confidence == language.No {
		return 0
	}
	return index
}

// Match 返回实际使用的语言标签
func (c *Catalog) Match(locale string) string {
	return c.tags[c.resolve(locale)].String()
}

// Message 查找文案,当前语言缺少该键时回退到默认语言,仍缺失时返回键名
func (c *Catalog) Message(locale, key string) string {
	if msg, ok := c.messages[c.resolve(locale)][key]; ok && msg != "" {
		return msg
	}
	if msg, ok := c.messages[0][key]; ok && msg != "" {
		return msg
	}
	return key
}

// Messagef 查找文案并格式化
func (c *Catalog) Messagef(locale, key string, args ...interface{}) string {
	return fmt.Sprintf(c.Message(locale, key), args...)
}

// NextLabel 返回用于匹配"下一页"控件的小写文本
// override非空时优先使用
func (c *Catalog) NextLabel(locale, override string) string {
	label := override
	if strings.TrimSpace(label) == "" {
		label = c.Message(locale, KeyNext)
	}
	return strings.ToLower(strings.TrimSpace(label))
}
