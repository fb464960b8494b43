/*文案文件加载与结果落盘*/
package file

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadTexts 从文件加载批量文案。
// CSV取每行第一列（首行为"text"表头时跳过），其他格式按行读取，
// 空行一律忽略。
func LoadTexts(path string) ([]string, error) {
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return loadCSV(path)
	}
	return loadLines(path)
}

func loadCSV(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开文案文件失败: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("解析CSV失败: %w", err)
	}

	var texts []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		text := strings.TrimSpace(row[0])
		if text == "" {
			continue
		}
		if i == 0 && strings.EqualFold(text, "text") {
			continue
		}
		texts = append(texts, text)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("文案文件没有任何内容: %s", path)
	}
	return texts, nil
}

func loadLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取文案文件失败: %w", err)
	}

	var texts []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line != "" {
			texts = append(texts, line)
		}
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("文案文件没有任何内容: %s", path)
	}
	return texts, nil
}

// EnsureDir 确保目录存在
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建目录失败 %s: %w", dir, err)
	}
	return nil
}

// SaveJSON 把结果以缩进JSON写入文件
func SaveJSON(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化JSON失败: %w", err)
	}

	if err := os.WriteFile(path, jsonData, 0644); err != nil {
		return fmt.Errorf("写入JSON文件失败: %w", err)
	}
	return nil
}
