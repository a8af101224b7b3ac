package usecase

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fixora/pim/internal/domain"
)

func productWithImages(n int) *domain.Product {
	p := domain.NewProduct(testTenant, completeFields("QG-1"), "editor-1", domain.UserRoleEditor)
	p.Images = nil
	for i := 0; i < n; i++ {
		p.Images = append(p.Images, domain.ProductImage{URL: "https://cdn.example.com/img.jpg"})
	}
	return p
}

func TestQualityGate_ImageBoundaries(t *testing.T) {
	thresholds := domain.DefaultQualityThresholds()
	gate := NewQualityGate(thresholds)

	tests := []struct {
		name      string
		images    int
		valid     bool
		warnings  int
		errSubstr string
	}{
		{"at minimum", thresholds.MinImageCount, true, 0, ""},
		{"below minimum", thresholds.MinImageCount - 1, false, 0, "at least 1 image(s)"},
		{"at maximum", thresholds.MaxImageCount, true, 0, ""},
		{"above maximum warns", thresholds.MaxImageCount + 1, true, 1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := gate.Check(productWithImages(tt.images))
			assert.Equal(t, tt.valid, result.IsValid, result.Errors)
			assert.Len(t, result.Warnings, tt.warnings)
			if tt.errSubstr != "" {
				assert.Len(t, result.Errors, 1)
				assert.Contains(t, result.Errors[0], tt.errSubstr)
			}
		})
	}
}

func TestQualityGate_ContentRules(t *testing.T) {
	gate := NewQualityGate(domain.DefaultQualityThresholds())

	p := productWithImages(1)
	p.Description = "  too short  "
	p.Categories = []string{"", "  "}
	p.Keywords = []string{"one", "two"}

	result := gate.Check(p)
	assert.False(t, result.IsValid)
	assert.Equal(t, []string{
		"Description must be at least 50 characters, has 9",
		"Product must have at least 1 category(ies), has 0",
		"Product must have at least 3 keyword(s), has 2",
	}, result.Errors)

	p = productWithImages(1)
	p.Description = strings.Repeat("x", 5001)
	p.Categories = []string{"a", "b", "c", "d", "e", "f"}
	result = gate.Check(p)
	assert.True(t, result.IsValid)
	assert.Len(t, result.Warnings, 2)
}

func TestQualityGate_CustomThresholds(t *testing.T) {
	gate := NewQualityGate(domain.QualityThresholds{MaxImageCount: 3, MaxDescriptionLength: 10, MaxCategories: 1, MaxKeywords: 1})
	p := productWithImages(0)
	p.Description = ""
	p.Categories = nil
	p.Keywords = nil

	result := gate.Check(p)
	assert.True(t, result.IsValid)
	assert.Equal(t, 3, gate.Thresholds().MaxImageCount)
}

func TestQualityGate_NilProduct(t *testing.T) {
	result := NewQualityGate(domain.DefaultQualityThresholds()).Check(nil)
	assert.Equal(t, []string{"Product is required"}, result.Errors)
}
