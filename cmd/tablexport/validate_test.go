package main

import "testing"

func TestValidateFlags(t *testing.T) {
	tests := []struct {
		name      string
		url       string
		file      string
		expectErr bool
	}{
		{"单个URL", "https://example.com/orders", "", false},
		{"省略协议", "example.com/orders", "", false},
		{"URL文件", "", "urls.txt", false},
		{"都未指定", "", "", true},
		{"同时指定", "https://example.com", "urls.txt", true},
		{"不支持的协议", "ftp://example.com/x", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateFlags(tt.url, tt.file); (err != nil) != tt.expectErr {
				t.Errorf("ValidateFlags() error = %v, expectErr %v", err, tt.expectErr)
			}
		})
	}
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"example.com/list", "https://example.com/list"},
		{"  http://example.com/a?page=1 ", "http://example.com/a?page=1"},
		{"https://example.com", "https://example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
