package menu

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Menu categories.
const (
	CategoryStarters   = "Starters"
	CategoryMainCourse = "Main Course"
	CategoryDesserts   = "Desserts"
	CategoryBreakFast  = "Break Fast"
)

var categoryTable = map[string]string{
	"Starter":     CategoryStarters,
	"Starters":    CategoryStarters,
	"Main Course": CategoryMainCourse,
	"Dessert":     CategoryDesserts,
	"Desserts":    CategoryDesserts,
	"Break Fast":  CategoryBreakFast,
	"Breakfast":   CategoryMainCourse,
	"Lunch":       CategoryMainCourse,
	"Dinner":      CategoryMainCourse,
}

// NormalizeCategory collapses whitespace and title-cases raw.
func NormalizeCategory(raw string) string {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return ""
	}
	return cases.Title(language.English).String(strings.ToLower(strings.Join(fields, " ")))
}

// MapCategory converts a recipe category into its menu category. Unknown
// values fall back to Main Course.
func MapCategory(raw string) string {
	if mapped, ok := categoryTable[NormalizeCategory(raw)]; ok {
		return mapped
	}
	return CategoryMainCourse
}
