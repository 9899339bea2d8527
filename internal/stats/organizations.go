// internal/stats/organizations.go
package stats

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"strings"

	"statdash/internal/utils"
)

type OrganizationStore interface {
	ListOrganizations(ctx context.Context) ([]string, error)
}

// OrganizationFilter отдает список организаций для UI, сужая его по
// префиксам из файла. Файл читается при каждом вызове.
type OrganizationFilter struct {
	Store      OrganizationStore
	PrefixPath string
}

func NewOrganizationFilter(store OrganizationStore, prefixPath string) *OrganizationFilter {
	return &OrganizationFilter{Store: store, PrefixPath: prefixPath}
}

// List никогда не возвращает ошибку: при сбое хранилища - пустой список.
func (f *OrganizationFilter) List(ctx context.Context, applyFilter bool) []string {
	var prefixes []string
	if applyFilter {
		prefixes = f.loadPrefixes()
	}

	organizations, err := f.Store.ListOrganizations(ctx)
	if err != nil {
		slog.Error("Ошибка при получении организаций", "error", err)
		return []string{}
	}

	if applyFilter && len(prefixes) > 0 {
		organizations = FilterByPrefix(organizations, prefixes)
	}
	if organizations == nil {
		organizations = []string{}
	}
	return organizations
}

func (f *OrganizationFilter) loadPrefixes() []string {
	if f.PrefixPath == "" {
		return nil
	}
	prefixes, err := utils.LoadPrefixList(f.PrefixPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Файл фильтра организаций не найден, фильтр не применяется", "path", f.PrefixPath)
		} else {
			slog.Warn("Не удалось прочитать файл фильтра организаций, фильтр не применяется", "path", f.PrefixPath, "error", err)
		}
		return nil
	}
	return prefixes
}

// FilterByPrefix оставляет имена, начинающиеся хотя бы с одного префикса.
// Порядок входа сохраняется, сравнение регистрозависимое.
func FilterByPrefix(organizations, prefixes []string) []string {
	if len(prefixes) == 0 {
		return organizations
	}
	filtered := make([]string, 0, len(organizations))
	for _, org := range organizations {
		for _, prefix := range prefixes {
			if strings.HasPrefix(org, prefix) {
				filtered = append(filtered, org)
				break
			}
		}
	}
	return filtered
}
