// internal/utils/load_prefixes.go
package utils

import (
	"bufio"
	"fmt"
	"os"
	"strings"
)

// LoadPrefixList читает файл по одному префиксу в строке, пустые строки пропускаются.
func LoadPrefixList(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия файла префиксов '%s': %w", filePath, err)
	}
	defer file.Close()

	var prefixes []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			prefixes = append(prefixes, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения файла префиксов '%s': %w", filePath, err)
	}
	return prefixes, nil
}
