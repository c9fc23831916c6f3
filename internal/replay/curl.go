package replay

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cdpharvest/pkg/traffic"
)

// CurlCommand 生成与重放请求等价的 curl 命令，便于人工排查
func CurlCommand(method, url string, h traffic.Header, body []byte) string {
	parts := []string{"curl --location " + shellQuote(url)}
	if !strings.EqualFold(method, "GET") {
		parts = append(parts, "--request "+strings.ToUpper(method))
	}
	for _, k := range h.Keys() {
		parts = append(parts, "--header "+shellQuote(k+": "+h[k]))
	}
	if len(body) > 0 {
		parts = append(parts, "--data "+shellQuote(string(body)))
	}
	return strings.Join(parts, " \\\n  ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// writeDump 将 curl 命令写入调试目录
func writeDump(dir, label, cmd string) (string, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	name := fmt.Sprintf("replay_%s_%d.sh", sanitize(label), time.Now().UnixNano())
	path := filepath.Join(dir, name)
	content := "#!/bin/sh\n" + cmd + "\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, s)
}
