package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/RezaEskandarii/quirrel/custom_errors"
	"github.com/RezaEskandarii/quirrel/types"
)

type DataMap struct {
	Data map[string]any
}

func NewPaginatedDataMap[T any](data types.PaginationResult[T]) DataMap {
	return DataMap{
		Data: map[string]any{
			"page":            data.Page,
			"totalPages":      data.TotalPages,
			"items":           data.Items,
			"hasPreviousPage": data.HasPreviousPage,
			"hasNextPage":     data.HasNextPage,
			"totalItems":      data.TotalItems,
		},
	}
}

func (d DataMap) Add(key string, value any) DataMap {
	d.Data[key] = value
	return d
}

func getPageNumber(r *http.Request) int {
	page := r.URL.Query().Get("page")
	pageNumber, err := strconv.ParseInt(page, 10, 64)
	if err != nil || pageNumber < 1 {
		pageNumber = 1
	}
	return int(pageNumber)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusOf maps engine errors to HTTP statuses.
func statusOf(err error) int {
	switch {
	case errors.Is(err, custom_errors.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, custom_errors.ErrUnsupportedOperation):
		return http.StatusNotImplemented
	case errors.Is(err, custom_errors.ErrRegistryUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func printBanner(addr string) {
	width := 46
	fmt.Println("##############################################")
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Printf("# %-*s #\n", width-4, "Quirrel Started")
	fmt.Printf("# %-*s #\n", width-4, fmt.Sprintf("Admin API running on %s", addr))
	fmt.Printf("# %-*s #\n", width-4, "")
	fmt.Println("##############################################")
}
