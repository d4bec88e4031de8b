package report

import (
	"fmt"
	"math"

	"github.com/mantis/reportd/internal/driver"
)

// Page defaults.
const (
	DefaultPageNumber = 1
	DefaultPageSize   = 10
)

// Page selects one page of every fragment's result.
type Page struct {
	Number int `json:"page"`
	Size   int `json:"page_size"`
}

// NewPage applies defaults to zero values and caps the size at
// driver.MaxQueryRows. Negative values are rejected.
func NewPage(number, size, defaultSize int) (Page, error) {
	if number < 0 || size < 0 {
		return Page{}, fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPage, number, size)
	}
	if number == 0 {
		number = DefaultPageNumber
	}
	if size == 0 {
		size = defaultSize
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > driver.MaxQueryRows {
		size = driver.MaxQueryRows
	}
	// The row offset must fit in an int
	if number-1 > math.MaxInt/size {
		return Page{}, fmt.Errorf("%w: page=%d page_size=%d", ErrInvalidPage, number, size)
	}
	return Page{Number: number, Size: size}, nil
}

// Offset returns the number of rows skipped before the page.
func (p Page) Offset() int {
	return (p.Number - 1) * p.Size
}
