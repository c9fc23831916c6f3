package report

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// JSONFile 将结果写为带缩进的 JSON 文件，Path 中的 {run} 替换为运行 ID
type JSONFile struct {
	Path string
	// Written 最近一次写入的实际路径
	Written string
}

func (j *JSONFile) Report(_ context.Context, s *Summary) error {
	path := strings.ReplaceAll(j.Path, "{run}", string(s.RunID))
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	j.Written = path
	return nil
}
