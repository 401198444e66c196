package http

import (
	"net/url"
	"strconv"
	"strings"

	"pricedash/internal/core"
)

// Query parameter names shared by the price endpoints.
const (
	ParamProvince = "province"
	ParamDistrict = "district"
	ParamItem     = "item"
	ParamItemID   = "itemId"
	ParamLimit    = "limit"
)

// ParseSelection reads the location and item terms of a request. Parsing
// never fails: an absent term is 0, and a present term that is not an
// integer becomes -1 so the filter builder drops it like any other index
// that does not resolve.
func ParseSelection(query url.Values) core.FilterSelection {
	return core.FilterSelection{
		ProvinceIndex: parseIndex(query.Get(ParamProvince)),
		DistrictIndex: parseIndex(query.Get(ParamDistrict)),
		ItemName:      sanitizeInput(query.Get(ParamItem)),
		ItemID:        parseIndex(query.Get(ParamItemID)),
	}
}

// ParseLimit returns the requested row cap, or 0 when absent or invalid.
// The service clamps it.
func ParseLimit(query url.Values) int {
	v := strings.TrimSpace(query.Get(ParamLimit))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseIndex(raw string) int {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return -1
	}
	return n
}

// canonicalQuery drops unknown parameters and orders the rest so that
// equivalent requests share a cache entry.
func canonicalQuery(query url.Values, keep ...string) string {
	out := url.Values{}
	for _, k := range keep {
		if v := strings.TrimSpace(query.Get(k)); v != "" {
			out.Set(k, v)
		}
	}
	return out.Encode()
}

// sanitizeInput trims whitespace and removes control characters.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
}
