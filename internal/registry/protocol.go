package registry

import (
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

// ProtocolRegistry maps on-chain addresses to named protocols. Lookups are
// exact-match on the lowercase-normalized address; unknown addresses are a
// valid, common outcome, not a failure. Descriptors are immutable once
// registered.
type ProtocolRegistry struct {
	byAddress map[string]models.ProtocolDescriptor
}

// knownProtocols is the seed table. Several addresses map to the same
// protocol (router versions, pools, gateways).
var knownProtocols = map[string]struct {
	category  models.ProtocolCategory
	addresses []string
}{
	// DEX protocols
	"uniswap": {models.ProtocolCategoryDEX, []string{
		"0x68b3465833fb72a70ecdf485e0e4c7bd8665fc45", // V3 router
		"0x7a250d5630b4cf539739df2c5dacb4c659f2488d", // V2 router
	}},
	"curve": {models.ProtocolCategoryDEX, []string{
		"0x99a58482bd75cbab83b27ec03ca68ff489b5788f",
		"0xbabe61887f1de2713c6f97e567623453d3c79f67",
	}},

	// Lending protocols
	"aave": {models.ProtocolCategoryLending, []string{
		"0x7d2768de32b0b80b7a3454c06bdac94a69ddc7a9", // V2
		"0x87870bca3f3fd6335c3f4ce8392d69350b4fa4e2", // V3
	}},
	"compound": {models.ProtocolCategoryLending, []string{
		"0x3d9819210a31b4961b30ef54be2aed79b9c9cd3b", // comptroller
		"0x4ddc2d193948926d02f9b1fe9e1daa0718270ed5", // cETH
	}},

	// RWA protocols
	"goldfinch": {models.ProtocolCategoryRWA, []string{
		"0x8481a6ebaf5c7dabc3f7e09e44a89531fd31f822", // senior pool
		"0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48",
	}},
	"centrifuge": {models.ProtocolCategoryRWA, []string{
		"0x4abbf7f193460d611eb431373ee84ac9abbd4d96",
		"0x3c1580ce9e792f4eb04cf1d5e3c93d35445fb8c7", // tinlake
	}},
	"maple": {models.ProtocolCategoryRWA, []string{
		"0x6f6c8013f639979c84b756c7fc1500eb5af18dc4",
		"0x0a0b06530768a644f9e8fe23d20dd45ddb415e3e",
	}},

	// Bridge protocols
	"arbitrum_bridge": {models.ProtocolCategoryBridge, []string{
		"0x8315177ab297ba92a06054ce80a67ed4dbd7ed3a", // gateway
		"0x4c6f947ae67f572afa4ae0730947de7c874f95ef",
	}},
	"optimism_bridge": {models.ProtocolCategoryBridge, []string{
		"0x99c9fc46f92e8a1c0dec1b1747d010903e884be1", // gateway
		"0x3e7ac3dab3e366f96b35a5dba99ea6763be1e917",
	}},
}

// NewDefaultProtocolRegistry builds a registry seeded with the known
// protocol table.
func NewDefaultProtocolRegistry() *ProtocolRegistry {
	r := &ProtocolRegistry{byAddress: make(map[string]models.ProtocolDescriptor)}
	for name, entry := range knownProtocols {
		for _, addr := range entry.addresses {
			r.Register(models.ProtocolDescriptor{
				Address:  addr,
				Name:     name,
				Category: entry.category,
			})
		}
	}
	return r
}

// NewProtocolRegistry builds an empty registry; used by tests and by callers
// that load their own table.
func NewProtocolRegistry() *ProtocolRegistry {
	return &ProtocolRegistry{byAddress: make(map[string]models.ProtocolDescriptor)}
}

// Register adds a descriptor to the table. The first registration for an
// address wins; descriptors are immutable once registered.
func (r *ProtocolRegistry) Register(desc models.ProtocolDescriptor) {
	addr := models.NormalizeAddress(desc.Address)
	if addr == "" {
		return
	}
	if _, exists := r.byAddress[addr]; exists {
		return
	}
	desc.Address = addr
	r.byAddress[addr] = desc
}

// Resolve looks up the protocol for an address. The input is normalized
// before the exact-match lookup; ok is false when the address is unknown.
func (r *ProtocolRegistry) Resolve(address string) (models.ProtocolDescriptor, bool) {
	desc, ok := r.byAddress[models.NormalizeAddress(address)]
	return desc, ok
}

// IsBridge reports whether the address belongs to a known bridge contract.
func (r *ProtocolRegistry) IsBridge(address string) bool {
	desc, ok := r.Resolve(address)
	return ok && desc.Category == models.ProtocolCategoryBridge
}

// IsRWA reports whether the address belongs to a known real-world-asset
// protocol.
func (r *ProtocolRegistry) IsRWA(address string) bool {
	desc, ok := r.Resolve(address)
	return ok && desc.Category == models.ProtocolCategoryRWA
}

// DisplayName renders a protocol name for notifications ("arbitrum_bridge"
// becomes "Arbitrum Bridge").
func DisplayName(name string) string {
	caser := cases.Title(language.English)
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		if name[i] == '_' {
			out = append(out, ' ')
			continue
		}
		out = append(out, name[i])
	}
	return caser.String(string(out))
}
