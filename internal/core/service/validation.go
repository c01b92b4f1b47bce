package service

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/rl1809/order-pipeline/internal/core/domain"
	"github.com/rl1809/order-pipeline/internal/pkg/cursor"
)

const (
	MaxOrderQuantity   = 100
	MaxProductPageSize = 100
	MaxOrderPageSize   = 50
	maxNameLength      = 200
	maxDescriptionLen  = 2000
	maxPrice           = 100_000_000
	maxProductQuantity = 1_000_000
	maxSKULength       = 50
	maxImageURLLength  = 500
	maxSearchLength    = 100
)

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// validatePlaceOrder also rewrites UserEmail to its bare address so that a
// display-name form like "Ann <ann@example.com>" can be used as an SMTP recipient.
func validatePlaceOrder(in *PlaceOrderInput) error {
	switch {
	case strings.TrimSpace(in.UserID) == "":
		return domain.Validation("user id is required")
	case in.UserEmail == "":
		return domain.Validation("user email is required")
	case strings.TrimSpace(in.ProductID) == "":
		return domain.Validation("product id is required")
	case in.Quantity < 1:
		return domain.Validation("quantity must be at least 1")
	case in.Quantity > MaxOrderQuantity:
		return domain.Validation(fmt.Sprintf("cannot order more than %d items at once", MaxOrderQuantity))
	}
	addr, err := mail.ParseAddress(in.UserEmail)
	if err != nil {
		return domain.Validation("user email is invalid")
	}
	in.UserEmail = addr.Address
	return nil
}

func validateNewProduct(p domain.NewProduct) error {
	if err := validateName(p.Name); err != nil {
		return err
	}
	if err := validateDescription(p.Description); err != nil {
		return err
	}
	if err := validateCategory(p.Category); err != nil {
		return err
	}
	if err := validatePrice(p.Price); err != nil {
		return err
	}
	if err := validateQuantity(p.Quantity); err != nil {
		return err
	}
	if err := validateSKU(p.SKU); err != nil {
		return err
	}
	return validateImageURL(p.ImageURL)
}

func validatePatch(p domain.ProductPatch) error {
	if p.IsEmpty() {
		return domain.Validation("at least one field must be provided for update")
	}
	checks := []func() error{
		func() error { return optional(p.Name, validateName) },
		func() error { return optional(p.Description, validateDescription) },
		func() error { return optional(p.Category, validateCategory) },
		func() error { return optional(p.Price, validatePrice) },
		func() error { return optional(p.Quantity, validateQuantity) },
		func() error { return optional(p.SKU, validateSKU) },
		func() error { return optional(p.ImageURL, validateImageURL) },
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func optional[T any](v *T, check func(T) error) error {
	if v == nil {
		return nil
	}
	return check(*v)
}

func validateName(name string) error {
	if strings.TrimSpace(name) == "" || len(name) > maxNameLength {
		return domain.Validation(fmt.Sprintf("name must be 1-%d characters", maxNameLength))
	}
	return nil
}

func validateDescription(d string) error {
	if strings.TrimSpace(d) == "" || len(d) > maxDescriptionLen {
		return domain.Validation(fmt.Sprintf("description must be 1-%d characters", maxDescriptionLen))
	}
	return nil
}

func validateCategory(c string) error {
	if !domain.ValidCategory(c) {
		return domain.Validation("category must be one of: " + strings.Join(domain.ProductCategories, ", "))
	}
	return nil
}

func validatePrice(p int64) error {
	if p <= 0 || p > maxPrice {
		return domain.Validation("price must be a positive whole number of cents not exceeding the maximum")
	}
	return nil
}

func validateQuantity(q int) error {
	if q < 0 || q > maxProductQuantity {
		return domain.Validation(fmt.Sprintf("quantity must be between 0 and %d", maxProductQuantity))
	}
	return nil
}

func validateSKU(sku string) error {
	if sku == "" || len(sku) > maxSKULength || !skuPattern.MatchString(sku) {
		return domain.Validation("sku can only contain letters, numbers, hyphens, and underscores")
	}
	return nil
}

func validateImageURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > maxImageURLLength {
		return domain.Validation(fmt.Sprintf("image url must be %d characters or less", maxImageURLLength))
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return domain.Validation("image url must be a valid URL")
	}
	return nil
}

func validateProductFilter(f domain.ProductFilter) error {
	if f.Category != "" {
		if err := validateCategory(f.Category); err != nil {
			return err
		}
	}
	if len(f.Search) > maxSearchLength {
		return domain.Validation(fmt.Sprintf("search term must be %d characters or less", maxSearchLength))
	}
	return validatePage(f.PageSize, MaxProductPageSize, f.Cursor)
}

func validateOrderFilter(f domain.OrderFilter) error {
	if f.Status != "" && !f.Status.Valid() {
		return domain.Validation(fmt.Sprintf("unknown order status %q", f.Status))
	}
	return validatePage(f.PageSize, MaxOrderPageSize, f.Cursor)
}

func validatePage(size, max int, token string) error {
	if size < 0 || size > max {
		return domain.Validation(fmt.Sprintf("limit must be between 1 and %d", max))
	}
	if len(token) > cursor.MaxLength {
		return domain.Validation("invalid pagination token")
	}
	return nil
}
