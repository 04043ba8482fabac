package whitelist

import (
	"fmt"
	"strings"
)

// Region identifies one partition. The zero value means "any region" where an
// operation accepts it and is rejected everywhere else.
type Region struct {
	code string
}

// AnyRegion selects every partition in registry order.
var AnyRegion = Region{}

type regionDescriptor struct {
	code string
	name string
}

// Registry order is the scan order for unscoped checks.
var regionRegistry = []regionDescriptor{
	{code: "ME", name: "Middle East"},
	{code: "IND", name: "India"},
	{code: "ID", name: "Indonesia"},
	{code: "VN", name: "Vietnam"},
	{code: "TH", name: "Thailand"},
	{code: "BD", name: "Bangladesh"},
	{code: "PK", name: "Pakistan"},
	{code: "TW", name: "Taiwan"},
	{code: "EU", name: "Europe"},
	{code: "CIS", name: "CIS/Russia"},
	{code: "NA", name: "North America"},
	{code: "SAC", name: "South America"},
	{code: "BR", name: "Brazil"},
}

var regionIndex = buildRegionIndex()

func buildRegionIndex() map[string]int {
	index := make(map[string]int, len(regionRegistry))
	for position, descriptor := range regionRegistry {
		index[descriptor.code] = position
	}
	return index
}

// ParseRegion normalizes a region code and validates it against the registry.
func ParseRegion(raw string) (Region, error) {
	normalized := strings.ToUpper(strings.TrimSpace(raw))
	if _, ok := regionIndex[normalized]; !ok {
		return Region{}, fmt.Errorf("%w: %q", ErrInvalidRegion, raw)
	}
	return Region{code: normalized}, nil
}

// ParseOptionalRegion returns AnyRegion for blank input.
func ParseOptionalRegion(raw string) (Region, error) {
	if strings.TrimSpace(raw) == "" {
		return AnyRegion, nil
	}
	return ParseRegion(raw)
}

// IsValidRegion reports whether code names a registered region.
func IsValidRegion(code string) bool {
	_, ok := regionIndex[code]
	return ok
}

// AllRegions returns every region in registry order.
func AllRegions() []Region {
	regions := make([]Region, 0, len(regionRegistry))
	for _, descriptor := range regionRegistry {
		regions = append(regions, Region{code: descriptor.code})
	}
	return regions
}

// String returns the region code.
func (region Region) String() string {
	return region.code
}

// IsAny reports whether region is the AnyRegion selector.
func (region Region) IsAny() bool {
	return region.code == ""
}

// DisplayName returns the human-readable region name.
func (region Region) DisplayName() string {
	position, ok := regionIndex[region.code]
	if !ok {
		return ""
	}
	return regionRegistry[position].name
}

func (region Region) order() int {
	position, ok := regionIndex[region.code]
	if !ok {
		return len(regionRegistry)
	}
	return position
}

// PartitionCollection names the durable collection backing region.
func PartitionCollection(region Region) string {
	return partitionCollectionPrefix + strings.ToLower(region.code)
}

// AccountsCollection names the durable collection backing the coin ledger.
func AccountsCollection() string {
	return accountsCollection
}
