package classify

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const (
	mainThemeColumn = "Main Theme"
	subThemeColumn  = "Sub Theme"
)

// ThemeMapping resolves numeric model output ids to human-readable theme
// names sourced from an Excel workbook. Model servers trained on encoded
// labels return bare ids; the mapping restores the display names before the
// labels reach the output CSV.
type ThemeMapping struct {
	mainByID map[int]string
	subByID  map[int]string
}

// LoadThemeMapping reads the first sheet of a workbook with "Main Theme" and
// "Sub Theme" columns. Ids are assigned in first-appearance order, matching
// how the labels were encoded at training time.
func LoadThemeMapping(path string) (*ThemeMapping, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open theme workbook %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("theme workbook %s has no sheets", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read theme workbook %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("theme workbook %s has no data rows", path)
	}

	mainCol, subCol := -1, -1
	for i, header := range rows[0] {
		switch strings.TrimSpace(header) {
		case mainThemeColumn:
			mainCol = i
		case subThemeColumn:
			subCol = i
		}
	}
	if mainCol < 0 {
		return nil, fmt.Errorf("theme workbook %s is missing column %q", path, mainThemeColumn)
	}

	mapping := &ThemeMapping{
		mainByID: map[int]string{},
		subByID:  map[int]string{},
	}
	seenMain := map[string]struct{}{}
	seenSub := map[string]struct{}{}
	for _, row := range rows[1:] {
		if name, ok := cellAt(row, mainCol); ok {
			if _, dup := seenMain[name]; !dup {
				seenMain[name] = struct{}{}
				mapping.mainByID[len(mapping.mainByID)] = name
			}
		}
		if subCol >= 0 {
			if name, ok := cellAt(row, subCol); ok {
				if _, dup := seenSub[name]; !dup {
					seenSub[name] = struct{}{}
					mapping.subByID[len(mapping.subByID)] = name
				}
			}
		}
	}
	if len(mapping.mainByID) == 0 {
		return nil, fmt.Errorf("theme workbook %s has no themes", path)
	}
	return mapping, nil
}

// ResolveLabel maps a numeric label to its main-theme name. Non-numeric or
// unknown labels pass through unchanged.
func (m *ThemeMapping) ResolveLabel(label string) string {
	if m == nil {
		return label
	}
	id, err := strconv.Atoi(strings.TrimSpace(label))
	if err != nil {
		return label
	}
	if name, ok := m.mainByID[id]; ok {
		return name
	}
	return label
}

// SubThemeName returns the sub-theme display name for an id.
func (m *ThemeMapping) SubThemeName(id int) (string, bool) {
	if m == nil {
		return "", false
	}
	name, ok := m.subByID[id]
	return name, ok
}

func cellAt(row []string, col int) (string, bool) {
	if col >= len(row) {
		return "", false
	}
	value := strings.TrimSpace(row[col])
	return value, value != ""
}
