// internal/protocol/bridges.go
package protocol

import (
	"fmt"

	"github.com/google/gousb"
)

// BridgeDatabase contains known USB to serial bridge chips for port
// descriptions
type BridgeDatabase struct {
	vendors map[gousb.ID]*BridgeVendor
}

// BridgeVendor contains vendor-specific information
type BridgeVendor struct {
	Name     string
	products map[gousb.ID]string
}

// NewBridgeDatabase creates and initializes the bridge database
func NewBridgeDatabase() *BridgeDatabase {
	db := &BridgeDatabase{
		vendors: make(map[gousb.ID]*BridgeVendor),
	}
	db.initializeDatabase()
	return db
}

func (db *BridgeDatabase) initializeDatabase() {
	db.AddVendor(0x0403, "FTDI", map[gousb.ID]string{
		0x6001: "FT232R",
		0x6010: "FT2232",
		0x6011: "FT4232",
		0x6014: "FT232H",
		0x6015: "FT230X",
	})
	db.AddVendor(0x10C4, "Silicon Labs", map[gousb.ID]string{
		0xEA60: "CP210x",
		0xEA70: "CP2105",
		0xEA71: "CP2108",
	})
	db.AddVendor(0x1A86, "WCH", map[gousb.ID]string{
		0x7523: "CH340",
		0x5523: "CH341",
		0x55D4: "CH9102",
	})
	db.AddVendor(0x067B, "Prolific", map[gousb.ID]string{
		0x2303: "PL2303",
	})
	db.AddVendor(0x0483, "STMicroelectronics", map[gousb.ID]string{
		0x5740: "Virtual COM Port",
	})
	db.AddVendor(0x04D8, "Microchip", map[gousb.ID]string{
		0x000A: "CDC RS-232 Emulation",
		0x00DD: "MCP2221",
	})
}

// AddVendor adds or replaces a vendor with its known products
func (db *BridgeDatabase) AddVendor(vendorID gousb.ID, name string, products map[gousb.ID]string) {
	if products == nil {
		products = make(map[gousb.ID]string)
	}
	db.vendors[vendorID] = &BridgeVendor{Name: name, products: products}
}

// Describe names a VID/PID pair given as hex strings. ok is false when the
// vendor is unknown or the ids do not parse.
func (db *BridgeDatabase) Describe(vid, pid string) (string, bool) {
	vendorID, err := parseHexID(vid)
	if err != nil {
		return "", false
	}
	vendor, exists := db.vendors[vendorID]
	if !exists {
		return "", false
	}

	productID, err := parseHexID(pid)
	if err == nil {
		if model, exists := vendor.products[productID]; exists {
			return vendor.Name + " " + model, true
		}
	}
	return fmt.Sprintf("%s USB %s:%s", vendor.Name, vid, pid), true
}
