package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/CoachOps/internal/repository"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

type paginationMeta struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Count int `json:"count"`
}

// listOptions turns ?page, ?limit and ?sort into repository windowing.
func listOptions(c *fiber.Ctx) (repository.ListOptions, paginationMeta) {
	page := parsePositiveInt(c.Query("page"), 1)
	limit := parsePositiveInt(c.Query("limit"), defaultPageLimit)
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	opts := repository.ListOptions{
		Sort:  strings.TrimSpace(c.Query("sort")),
		Skip:  (page - 1) * limit,
		Limit: limit,
	}
	return opts, paginationMeta{Page: page, Limit: limit}
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

// splitList parses a comma-separated query value.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
