package domain

import "fmt"

// QualityThresholds are the content limits checked before a product advances past review
type QualityThresholds struct {
	MinImageCount        int `json:"minImageCount" yaml:"minImageCount"`
	MaxImageCount        int `json:"maxImageCount" yaml:"maxImageCount"`
	MinDescriptionLength int `json:"minDescriptionLength" yaml:"minDescriptionLength"`
	MaxDescriptionLength int `json:"maxDescriptionLength" yaml:"maxDescriptionLength"`
	RequiredCategories   int `json:"requiredCategories" yaml:"requiredCategories"`
	MaxCategories        int `json:"maxCategories" yaml:"maxCategories"`
	MinKeywords          int `json:"minKeywords" yaml:"minKeywords"`
	MaxKeywords          int `json:"maxKeywords" yaml:"maxKeywords"`
}

// DefaultQualityThresholds returns the built-in limits
func DefaultQualityThresholds() QualityThresholds {
	return QualityThresholds{
		MinImageCount:        1,
		MaxImageCount:        10,
		MinDescriptionLength: 50,
		MaxDescriptionLength: 5000,
		RequiredCategories:   1,
		MaxCategories:        5,
		MinKeywords:          3,
		MaxKeywords:          20,
	}
}

// Validate rejects negative limits and maxima below their minima
func (q QualityThresholds) Validate() error {
	pairs := []struct {
		name     string
		min, max int
	}{
		{"image count", q.MinImageCount, q.MaxImageCount},
		{"description length", q.MinDescriptionLength, q.MaxDescriptionLength},
		{"categories", q.RequiredCategories, q.MaxCategories},
		{"keywords", q.MinKeywords, q.MaxKeywords},
	}
	for _, p := range pairs {
		if p.min < 0 || p.max < 0 {
			return fmt.Errorf("quality %s limits must not be negative", p.name)
		}
		if p.max < p.min {
			return fmt.Errorf("quality %s maximum %d is below minimum %d", p.name, p.max, p.min)
		}
	}
	return nil
}
