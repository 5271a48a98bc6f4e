package crawler

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultURLTemplate points at the storefront pre-order category.
const DefaultURLTemplate = "https://store.playstation.com/{region}/category/3bf499d7-7acf-4931-97dd-2667494ee2c9/{page}"

// PageURL expands {region} and {page} in template.
func PageURL(template string, region Region, page int) (string, error) {
	if !strings.Contains(template, "{region}") || !strings.Contains(template, "{page}") {
		return "", fmt.Errorf("%w: url template %q must contain {region} and {page}", ErrConfig, template)
	}
	r := strings.NewReplacer("{region}", string(region), "{page}", strconv.Itoa(page))
	return r.Replace(template), nil
}
