package model

import "strings"

// sensitiveUnknownStr is the string representation for unknown categories.
const sensitiveUnknownStr = "unknown"

// SensitiveCategory classifies why a column name looks like a protected
// attribute. The categories follow the attribute families fairness
// regulation usually names.
type SensitiveCategory string

// Sensitive attribute categories.
const (
	// SensitiveCategoryUnknown represents an unrecognized column.
	SensitiveCategoryUnknown SensitiveCategory = ""
	// SensitiveCategoryGender represents sex or gender columns.
	SensitiveCategoryGender SensitiveCategory = "gender"
	// SensitiveCategoryRace represents race or ethnicity columns.
	SensitiveCategoryRace SensitiveCategory = "race"
	// SensitiveCategoryAge represents age or birth-date columns.
	SensitiveCategoryAge SensitiveCategory = "age"
	// SensitiveCategoryReligion represents religion columns.
	SensitiveCategoryReligion SensitiveCategory = "religion"
	// SensitiveCategoryNationality represents nationality or citizenship columns.
	SensitiveCategoryNationality SensitiveCategory = "nationality"
	// SensitiveCategoryDisability represents disability columns.
	SensitiveCategoryDisability SensitiveCategory = "disability"
	// SensitiveCategoryMaritalStatus represents marital or relationship columns.
	SensitiveCategoryMaritalStatus SensitiveCategory = "marital_status"
)

// String returns the string representation of the category.
func (c SensitiveCategory) String() string {
	if c == SensitiveCategoryUnknown {
		return sensitiveUnknownStr
	}
	return string(c)
}

// IsValid returns true if this is a known category.
func (c SensitiveCategory) IsValid() bool {
	switch c {
	case SensitiveCategoryGender, SensitiveCategoryRace, SensitiveCategoryAge,
		SensitiveCategoryReligion, SensitiveCategoryNationality,
		SensitiveCategoryDisability, SensitiveCategoryMaritalStatus:
		return true
	default:
		return false
	}
}

// sensitivePatterns maps each category to lowercase substrings matched
// against column names. The patterns mirror the name matching the
// analysis service applies when it pre-selects sensitive columns, so
// client-side suggestions agree with the service's detected_sensitive
// list on common datasets.
var sensitivePatterns = map[SensitiveCategory][]string{
	SensitiveCategoryGender:        {"sex", "gender"},
	SensitiveCategoryRace:          {"race", "ethnic"},
	SensitiveCategoryAge:           {"age", "birth"},
	SensitiveCategoryReligion:      {"religion"},
	SensitiveCategoryNationality:   {"nationality", "citizen", "native_country", "native-country"},
	SensitiveCategoryDisability:    {"disab"},
	SensitiveCategoryMaritalStatus: {"marital", "relationship"},
}

// sensitiveCategoryOrder fixes the match order so a column matching two
// categories always classifies the same way.
var sensitiveCategoryOrder = []SensitiveCategory{
	SensitiveCategoryGender,
	SensitiveCategoryRace,
	SensitiveCategoryAge,
	SensitiveCategoryReligion,
	SensitiveCategoryNationality,
	SensitiveCategoryDisability,
	SensitiveCategoryMaritalStatus,
}

// SensitiveColumn is a column flagged as a likely protected attribute.
type SensitiveColumn struct {
	// Name is the column name as it appears in the dataset.
	Name string `json:"name"`

	// Category is why the column was flagged.
	Category SensitiveCategory `json:"category"`
}

// ClassifySensitiveColumn returns the category a column name falls
// into, or SensitiveCategoryUnknown when it matches no pattern.
// Matching is case-insensitive substring matching.
func ClassifySensitiveColumn(name string) SensitiveCategory {
	lowered := strings.ToLower(name)
	for _, category := range sensitiveCategoryOrder {
		for _, pattern := range sensitivePatterns[category] {
			if strings.Contains(lowered, pattern) {
				return category
			}
		}
	}
	return SensitiveCategoryUnknown
}

// DetectSensitiveColumns flags the columns that look like protected
// attributes, preserving the input order.
func DetectSensitiveColumns(columns []string) []SensitiveColumn {
	detected := make([]SensitiveColumn, 0, len(columns))
	for _, column := range columns {
		if category := ClassifySensitiveColumn(column); category != SensitiveCategoryUnknown {
			detected = append(detected, SensitiveColumn{Name: column, Category: category})
		}
	}
	return detected
}
