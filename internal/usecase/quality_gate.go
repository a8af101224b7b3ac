package usecase

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fixora/pim/internal/domain"
)

// QualityGate checks product content against configured thresholds.
// Falling below a minimum is an error; exceeding a maximum is a warning.
type QualityGate struct {
	thresholds domain.QualityThresholds
}

// NewQualityGate creates a gate with the given thresholds
func NewQualityGate(thresholds domain.QualityThresholds) *QualityGate {
	return &QualityGate{thresholds: thresholds}
}

// Thresholds returns the configured limits
func (g *QualityGate) Thresholds() domain.QualityThresholds {
	return g.thresholds
}

// Check runs every quality rule against product
func (g *QualityGate) Check(product *domain.Product) domain.ValidationResult {
	result := domain.NewValidationResult()
	if product == nil {
		result.AddError("Product is required")
		return result
	}
	t := g.thresholds

	images := len(product.Images)
	if images < t.MinImageCount {
		result.AddError(fmt.Sprintf("Product must have at least %d image(s), has %d", t.MinImageCount, images))
	} else if images > t.MaxImageCount {
		result.AddWarning(fmt.Sprintf("Product has %d images, more than the recommended %d", images, t.MaxImageCount))
	}

	descLen := utf8.RuneCountInString(strings.TrimSpace(product.Description))
	if descLen < t.MinDescriptionLength {
		result.AddError(fmt.Sprintf("Description must be at least %d characters, has %d", t.MinDescriptionLength, descLen))
	} else if descLen > t.MaxDescriptionLength {
		result.AddWarning(fmt.Sprintf("Description is %d characters, longer than the recommended %d", descLen, t.MaxDescriptionLength))
	}

	categories := countNonBlank(product.Categories)
	if categories < t.RequiredCategories {
		result.AddError(fmt.Sprintf("Product must have at least %d category(ies), has %d", t.RequiredCategories, categories))
	} else if categories > t.MaxCategories {
		result.AddWarning(fmt.Sprintf("Product has %d categories, more than the recommended %d", categories, t.MaxCategories))
	}

	keywords := countNonBlank(product.Keywords)
	if keywords < t.MinKeywords {
		result.AddError(fmt.Sprintf("Product must have at least %d keyword(s), has %d", t.MinKeywords, keywords))
	} else if keywords > t.MaxKeywords {
		result.AddWarning(fmt.Sprintf("Product has %d keywords, more than the recommended %d", keywords, t.MaxKeywords))
	}

	return result
}

func countNonBlank(values []string) int {
	n := 0
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			n++
		}
	}
	return n
}
